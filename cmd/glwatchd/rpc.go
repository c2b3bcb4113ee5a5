package main

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/rexliu/glwatch/pkg/core"
	"github.com/rexliu/glwatch/pkg/glinet"
	"github.com/rexliu/glwatch/pkg/ipc"
	"github.com/rexliu/glwatch/pkg/storage/sqlite"
)

func (d *daemon) registerHandlers(srv *ipc.Server) {
	srv.Register("ping", d.handlePing)
	srv.Register("latest", d.handleLatest)
	srv.Register("history", d.handleHistory)
	srv.Register("status", d.handleStatus)
	srv.RegisterStream("subscribe_samples", d.handleSubscribeSamples)
}

func (d *daemon) handlePing(ctx context.Context, params json.RawMessage) (any, *ipc.Error) {
	now := time.Now().UnixMilli()
	d.logger.Debug().Int64("now", now).Msg("received ping")
	return map[string]any{
		"now":           now,
		"username":      d.client.Session().Username(),
		"authenticated": d.client.Authenticated(),
		"subscribers":   d.hub.size(),
	}, nil
}

func (d *daemon) handleLatest(ctx context.Context, params json.RawMessage) (any, *ipc.Error) {
	sample, err := d.store.Latest(ctx)
	if errors.Is(err, sqlite.ErrNoSamples) {
		return nil, ipc.Errorf(ipc.CodeNotFound, err.Error(), nil)
	}
	if err != nil {
		return nil, ipc.Errorf(ipc.CodeStorage, err.Error(), nil)
	}
	return map[string]any{"sample": sample, "active": sample.Active()}, nil
}

func (d *daemon) handleHistory(ctx context.Context, params json.RawMessage) (any, *ipc.Error) {
	var query core.HistoryQuery
	if len(params) > 0 {
		if err := json.Unmarshal(params, &query); err != nil {
			return nil, ipc.Errorf(ipc.CodeInvalidRequest, "invalid history params", nil)
		}
	}
	query, err := core.ValidateQuery(query)
	if err != nil {
		return nil, ipc.Errorf(ipc.CodeInvalidRequest, err.Error(), nil)
	}
	samples, err := d.store.History(ctx, query)
	if err != nil {
		return nil, ipc.Errorf(ipc.CodeStorage, err.Error(), nil)
	}
	if samples == nil {
		samples = []core.Sample{}
	}
	return map[string]any{"samples": samples}, nil
}

type statusParams struct {
	Detail bool `json:"detail"`
}

type statusResult struct {
	Ethernet         glinet.NetworkStatus    `json:"ethernet"`
	Tethering        glinet.NetworkStatus    `json:"tethering"`
	EthernetDetails  *glinet.EthernetStatus  `json:"ethernetDetails,omitempty"`
	TetheringDetails *glinet.TetheringStatus `json:"tetheringDetails,omitempty"`
}

// handleStatus queries the router live through the poller's session. It does
// not log in; a daemon whose poller has not authenticated yet reports the error.
func (d *daemon) handleStatus(ctx context.Context, params json.RawMessage) (any, *ipc.Error) {
	var req statusParams
	if len(params) > 0 {
		if err := json.Unmarshal(params, &req); err != nil {
			return nil, ipc.Errorf(ipc.CodeInvalidRequest, "invalid status params", nil)
		}
	}
	uplinks, err := d.client.Uplinks(ctx)
	if err != nil {
		return nil, routerError(err)
	}
	res := statusResult{Ethernet: uplinks.Ethernet, Tethering: uplinks.Tethering}
	if req.Detail {
		eth, err := d.client.DetailedEthernetStatus(ctx)
		if err != nil {
			return nil, routerError(err)
		}
		teth, err := d.client.DetailedTetheringStatus(ctx)
		if err != nil {
			return nil, routerError(err)
		}
		res.EthernetDetails = &eth
		res.TetheringDetails = &teth
	}
	return res, nil
}

func routerError(err error) *ipc.Error {
	return ipc.Errorf(ipc.CodeRouter, err.Error(), map[string]any{"kind": glinet.Classify(err).String()})
}

func (d *daemon) handleSubscribeSamples(ctx context.Context, params json.RawMessage) (<-chan []byte, *ipc.Error) {
	if d.hub == nil {
		return nil, ipc.Errorf(ipc.CodeInternal, "event hub unavailable", nil)
	}
	return d.hub.subscribe(ctx), nil
}
