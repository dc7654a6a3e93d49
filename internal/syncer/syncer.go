// Package syncer orchestrates synchronization between the local offline
// cache and the quoting API: push drains the mutation queue, pull
// refreshes the cache from server truth while preserving records that
// have not been pushed yet.
package syncer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/sitequote/sitequote/internal/api"
	"github.com/sitequote/sitequote/internal/audit"
	"github.com/sitequote/sitequote/internal/entity"
	"github.com/sitequote/sitequote/internal/netmon"
	"github.com/sitequote/sitequote/internal/queue"
	"github.com/sitequote/sitequote/internal/repo"
)

// SyncResult aggregates one push cycle. Pushing is never atomic across
// items: a partial failure leaves some items synced and the rest queued,
// which is the desired behavior for eventual consistency.
type SyncResult struct {
	Synced int      `json:"synced"`
	Failed int      `json:"failed"`
	Errors []string `json:"errors,omitempty"`
}

// Engine drains the mutation queue against the API and merges server
// state back into the local cache. Session-log writes are diagnostics
// only; their errors are discarded rather than failing a cycle.
type Engine struct {
	client     *api.Client
	customers  *repo.CustomerRepo
	quotes     *repo.QuoteRepo
	floorplans *repo.FloorPlanRepo
	queue      *queue.Queue
	tombstones *repo.Tombstones
	log        *audit.Log
	probe      netmon.Probe
	newID      func() string
	now        func() time.Time

	// OnItem, when set, observes every processed queue item and the
	// outcome of its network round trip. Used by the CLI progress bar.
	OnItem func(item queue.Item, err error)

	group   singleflight.Group
	syncing atomic.Bool
}

// Deps wires an Engine.
type Deps struct {
	Client     *api.Client
	Customers  *repo.CustomerRepo
	Quotes     *repo.QuoteRepo
	FloorPlans *repo.FloorPlanRepo
	Queue      *queue.Queue
	Tombstones *repo.Tombstones
	Log        *audit.Log
	Probe      netmon.Probe
}

// New creates an Engine. Probe defaults to an HTTP probe against the API
// base when nil.
func New(d Deps) *Engine {
	probe := d.Probe
	if probe == nil {
		probe = netmon.NewHTTPProbe(d.Client.BaseURL() + "/health")
	}
	return &Engine{
		client:     d.Client,
		customers:  d.Customers,
		quotes:     d.Quotes,
		floorplans: d.FloorPlans,
		queue:      d.Queue,
		tombstones: d.Tombstones,
		log:        d.Log,
		probe:      probe,
		newID:      repo.NewLocalID,
		now:        time.Now,
	}
}

// Syncing reports whether a full sync cycle is currently in flight.
func (e *Engine) Syncing() bool {
	return e.syncing.Load()
}

// BindReconnect arranges for a full sync to run once per offline→online
// transition observed by the monitor.
func (e *Engine) BindReconnect(m *netmon.Monitor) {
	m.OnReconnect(func() {
		e.FullSync(context.Background())
	})
}

// errStorage marks failures of the Local Store during a push. Unlike a
// per-item network failure these abort the cycle: continuing after a
// partial cache write would corrupt subsequent reads.
type errStorage struct{ err error }

func (e errStorage) Error() string { return e.err.Error() }
func (e errStorage) Unwrap() error { return e.err }

// PushSync drains the mutation queue in FIFO order. Items that fail at
// the network or server stay queued for the next cycle (at-least-once
// delivery; the create payload's localId makes server-side retries
// idempotent). The returned error is non-nil only for storage failures,
// which abort the cycle and return the partial result built so far.
func (e *Engine) PushSync(ctx context.Context) (SyncResult, error) {
	var res SyncResult

	if !e.probe.Online(ctx) {
		// Precondition, not a per-item failure: zero progress, safe to retry.
		res.Errors = append(res.Errors, "offline: push skipped")
		_ = e.log.Append("sync_push_skipped", "offline")
		return res, nil
	}

	items, err := e.queue.List()
	if err != nil {
		return res, err
	}

	for _, item := range items {
		pushErr := e.pushItem(ctx, item)

		if e.OnItem != nil {
			e.OnItem(item, pushErr)
		}

		var storeErr errStorage
		if errors.As(pushErr, &storeErr) {
			res.Errors = append(res.Errors, fmt.Sprintf("storage failure, sync aborted: %v", storeErr.err))
			return res, storeErr.err
		}
		if pushErr != nil {
			res.Failed++
			res.Errors = append(res.Errors, fmt.Sprintf("%s %s %s: %v", item.Entity, item.Action, item.ID, pushErr))
			slog.Warn("push item failed", "entity", item.Entity, "action", item.Action, "id", item.ID, "error", pushErr)
			continue
		}

		if err := e.queue.Remove(item.ID); err != nil {
			res.Errors = append(res.Errors, fmt.Sprintf("storage failure, sync aborted: %v", err))
			return res, err
		}
		res.Synced++
		_ = e.log.Appendf("sync_item", "%s %s %s", item.Entity, item.Action, item.ID)
	}

	return res, nil
}

// pushItem performs one item's network round trip and records the server
// acknowledgement. Storage failures come back wrapped in errStorage.
func (e *Engine) pushItem(ctx context.Context, item queue.Item) error {
	endpoint, ok := api.EndpointFor(item.Entity)
	if !ok {
		return fmt.Errorf("no endpoint for entity kind %q", item.Entity)
	}

	switch item.Action {
	case queue.ActionCreate:
		if item.Entity == entity.KindFloorPlan {
			return e.pushFloorPlan(ctx, item)
		}
		payload, err := e.outboundPayload(item)
		if err != nil {
			return err
		}
		serverID, err := e.client.Create(ctx, endpoint, payload)
		if err != nil {
			return err
		}
		return e.acknowledge(item, serverID)

	case queue.ActionUpdate:
		payload, err := e.outboundPayload(item)
		if err != nil {
			return err
		}
		serverID, err := e.resolveServerID(item)
		if err != nil {
			return err
		}
		echoed, err := e.client.Update(ctx, endpoint, serverID, payload)
		if err != nil {
			return err
		}
		return e.acknowledge(item, echoed)

	case queue.ActionDelete:
		serverID := serverIDFromPayload(item.Data)
		if serverID == "" {
			// The record never reached the server; nothing to delete there.
			return nil
		}
		return e.client.Delete(ctx, endpoint, serverID)

	default:
		return fmt.Errorf("unknown action %q", item.Action)
	}
}

// pushFloorPlan uploads plan metadata plus file bytes as one multipart
// request.
func (e *Engine) pushFloorPlan(ctx context.Context, item queue.Item) error {
	var plan entity.FloorPlan
	if err := json.Unmarshal(item.Data, &plan); err != nil {
		return fmt.Errorf("decoding floor plan payload: %w", err)
	}

	data, err := e.floorplans.File(item.ID)
	if err != nil {
		return errStorage{fmt.Errorf("reading plan file: %w", err)}
	}

	serverID, err := e.client.UploadFloorPlan(ctx, plan, data)
	if err != nil {
		return err
	}
	return e.acknowledge(item, serverID)
}

// acknowledge records the server-assigned id on the local record.
func (e *Engine) acknowledge(item queue.Item, serverID string) error {
	var err error
	switch item.Entity {
	case entity.KindCustomer:
		err = e.customers.MarkSynced(item.ID, serverID)
	case entity.KindQuote:
		err = e.quotes.MarkSynced(item.ID, serverID)
	case entity.KindFloorPlan:
		err = e.floorplans.MarkSynced(item.ID, serverID)
	}
	if err != nil {
		return errStorage{err}
	}
	return nil
}

// serverIDFromPayload extracts the target server id carried by the
// queued payload.
func serverIDFromPayload(data json.RawMessage) string {
	var p struct {
		ServerID string `json:"serverId"`
	}
	json.Unmarshal(data, &p)
	return p.ServerID
}

// resolveServerID returns the server id an update must target. The
// collapse rules guarantee the payload carries one; as a safety net the
// current record is consulted in case the payload predates a markSynced.
func (e *Engine) resolveServerID(item queue.Item) (string, error) {
	if id := serverIDFromPayload(item.Data); id != "" {
		return id, nil
	}
	switch item.Entity {
	case entity.KindCustomer:
		if c, ok, err := e.customers.Get(item.ID); err != nil {
			return "", errStorage{err}
		} else if ok && c.ServerID != "" {
			return c.ServerID, nil
		}
	case entity.KindQuote:
		if q, ok, err := e.quotes.Get(item.ID); err != nil {
			return "", errStorage{err}
		} else if ok && q.ServerID != "" {
			return q.ServerID, nil
		}
	}
	return "", fmt.Errorf("update has no server id yet")
}

// outboundPayload prepares the JSON body for a create or update. For
// quotes the locally scoped customer reference is swapped for the
// customer's server id once it is known; FIFO ordering means the
// customer's own create has already been attempted by that point.
func (e *Engine) outboundPayload(item queue.Item) ([]byte, error) {
	if item.Entity != entity.KindQuote {
		return item.Data, nil
	}

	var m map[string]any
	if err := json.Unmarshal(item.Data, &m); err != nil {
		return nil, fmt.Errorf("decoding quote payload: %w", err)
	}
	localRef, _ := m["customerId"].(string)
	if localRef == "" {
		return item.Data, nil
	}
	cust, ok, err := e.customers.Get(localRef)
	if err != nil {
		return nil, errStorage{err}
	}
	if !ok || cust.ServerID == "" {
		return item.Data, nil
	}
	m["customerId"] = cust.ServerID
	m["customerLocalId"] = localRef
	out, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("encoding quote payload: %w", err)
	}
	return out, nil
}

// PullSync refreshes the local caches from server truth. Unsynced local
// records are kept as-is (they are local truth not yet pushed); synced
// records are rebuilt as wrappers around every server record,
// deduplicated by server id (first occurrence wins) and filtered through
// the tombstone set so local deletes cannot be resurrected. A rebuilt
// wrapper keeps the previous local id when its server id was already
// known locally, so queued items that reference the record by local id
// (a quote's customerId, a floor plan's quoteId) survive the merge.
// Floor plans have no server listing and are push-only.
//
// Offline is a no-op. Errors are returned for the caller to log; FullSync
// swallows them by design.
func (e *Engine) PullSync(ctx context.Context) error {
	if !e.probe.Online(ctx) {
		return nil
	}
	if err := e.pullCustomers(ctx); err != nil {
		return fmt.Errorf("pulling customers: %w", err)
	}
	if err := e.pullQuotes(ctx); err != nil {
		return fmt.Errorf("pulling quotes: %w", err)
	}
	return nil
}

func (e *Engine) pullCustomers(ctx context.Context) error {
	serverList, err := e.client.ListCustomers(ctx)
	if err != nil {
		return err
	}

	locals, err := e.customers.List()
	if err != nil {
		return err
	}
	tombs, err := e.tombstones.Set(entity.KindCustomer)
	if err != nil {
		return err
	}

	// Unsynced locals first; they carry no server id, so the dedup below
	// only ever drops duplicate server-derived entries. Synced locals
	// lend their local id to the rebuilt wrapper for the same server
	// record.
	merged := make([]entity.Customer, 0, len(locals)+len(serverList))
	seen := make(map[string]bool)
	knownLocal := make(map[string]string)
	for _, c := range locals {
		if c.Synced {
			knownLocal[c.ServerID] = c.LocalID
			continue
		}
		merged = append(merged, c)
	}

	serverIDs := make(map[string]bool, len(serverList))
	for _, sc := range serverList {
		serverIDs[sc.ID] = true
		if tombs[sc.ID] || seen[sc.ID] {
			continue
		}
		seen[sc.ID] = true
		localID := knownLocal[sc.ID]
		if localID == "" {
			localID = e.newID()
		}
		merged = append(merged, entity.Customer{
			Meta: entity.Meta{
				LocalID:   localID,
				ServerID:  sc.ID,
				Synced:    true,
				UpdatedAt: e.now(),
			},
			Name:    sc.Name,
			Email:   sc.Email,
			Phone:   sc.Phone,
			Address: sc.Address,
			Notes:   sc.Notes,
		})
	}

	if err := e.customers.SetAll(merged); err != nil {
		return err
	}
	if err := e.tombstones.Retain(entity.KindCustomer, serverIDs); err != nil {
		return err
	}
	_ = e.log.Appendf("sync_pull", "customers=%d (local unsynced kept=%d)", len(serverList), len(merged)-len(seen))
	return nil
}

func (e *Engine) pullQuotes(ctx context.Context) error {
	serverList, err := e.client.ListQuotes(ctx)
	if err != nil {
		return err
	}

	locals, err := e.quotes.List()
	if err != nil {
		return err
	}
	tombs, err := e.tombstones.Set(entity.KindQuote)
	if err != nil {
		return err
	}

	merged := make([]entity.Quote, 0, len(locals)+len(serverList))
	seen := make(map[string]bool)
	knownLocal := make(map[string]string)
	for _, q := range locals {
		if q.Synced {
			knownLocal[q.ServerID] = q.LocalID
			continue
		}
		merged = append(merged, q)
	}

	serverIDs := make(map[string]bool, len(serverList))
	for _, sq := range serverList {
		serverIDs[sq.ID] = true
		if tombs[sq.ID] || seen[sq.ID] {
			continue
		}
		seen[sq.ID] = true
		localID := knownLocal[sq.ID]
		if localID == "" {
			localID = e.newID()
		}
		// Server-derived wrappers reference the customer by its server id.
		merged = append(merged, entity.Quote{
			Meta: entity.Meta{
				LocalID:   localID,
				ServerID:  sq.ID,
				Synced:    true,
				UpdatedAt: e.now(),
			},
			CustomerID:    sq.CustomerID,
			Trade:         sq.Trade,
			Materials:     sq.Materials,
			MaterialsCost: sq.MaterialsCost,
			LaborCost:     sq.LaborCost,
			Markup:        sq.Markup,
			Total:         sq.Total,
			Status:        sq.Status,
		})
	}

	if err := e.quotes.SetAll(merged); err != nil {
		return err
	}
	if err := e.tombstones.Retain(entity.KindQuote, serverIDs); err != nil {
		return err
	}
	_ = e.log.Appendf("sync_pull", "quotes=%d (local unsynced kept=%d)", len(serverList), len(merged)-len(seen))
	return nil
}

// FullSync runs push then, regardless of the push outcome, pull. Pull
// failures are logged to the session log and swallowed; only the push
// result is observable to the caller. Concurrent callers (the reconnect
// trigger racing a manual "sync now") collapse into a single in-flight
// cycle and share its result.
func (e *Engine) FullSync(ctx context.Context) SyncResult {
	v, _, _ := e.group.Do("full", func() (any, error) {
		e.syncing.Store(true)
		defer e.syncing.Store(false)

		_ = e.log.Append("sync_start", "")

		res, pushErr := e.PushSync(ctx)
		if pushErr != nil {
			slog.Error("push aborted", "error", pushErr)
		}

		if err := e.PullSync(ctx); err != nil {
			_ = e.log.Append("sync_pull_error", err.Error())
			slog.Warn("pull failed", "error", err)
		}

		_ = e.log.Appendf("sync_complete", "synced=%d failed=%d", res.Synced, res.Failed)
		return res, nil
	})
	return v.(SyncResult)
}
