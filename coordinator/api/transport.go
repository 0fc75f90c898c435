package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/absmach/fedcycle/coordinator"
	"github.com/absmach/fedcycle/pkg/api"
	"github.com/absmach/supermq"
	apiutil "github.com/absmach/supermq/api/http/util"
	"github.com/go-chi/chi/v5"
	kithttp "github.com/go-kit/kit/transport/http"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const (
	// maxBodySize bounds uploaded models, plans and diffs.
	maxBodySize = 1024 * 1024 * 100

	workerIDKey   = "worker_id"
	requestKeyKey = "request_key"
	bearerPrefix  = "Bearer "
)

func MakeHandler(svc coordinator.Service, logger *slog.Logger, instanceID string) http.Handler {
	mux := chi.NewRouter()

	opts := []kithttp.ServerOption{
		kithttp.ServerErrorEncoder(apiutil.LoggingErrorEncoder(logger, api.EncodeError)),
	}

	mux.Route("/processes", func(r chi.Router) {
		r.Post("/", otelhttp.NewHandler(kithttp.NewServer(
			hostProcessEndpoint(svc),
			decodeHostProcessReq,
			api.EncodeResponse,
			opts...,
		), "host-process").ServeHTTP)
		r.Get("/{processID}/cycle", otelhttp.NewHandler(kithttp.NewServer(
			getProcessCycleEndpoint(svc),
			decodeEntityReq("processID"),
			api.EncodeResponse,
			opts...,
		), "get-process-cycle").ServeHTTP)
	})

	mux.Route("/workers", func(r chi.Router) {
		r.Post("/authenticate", otelhttp.NewHandler(kithttp.NewServer(
			authenticateEndpoint(svc),
			decodeAuthReq,
			api.EncodeResponse,
			opts...,
		), "authenticate").ServeHTTP)
		r.Post("/{workerID}/metrics", otelhttp.NewHandler(kithttp.NewServer(
			reportMetricsEndpoint(svc),
			decodeMetricsReq,
			api.EncodeResponse,
			opts...,
		), "report-metrics").ServeHTTP)
	})

	mux.Route("/cycles", func(r chi.Router) {
		r.Post("/request", otelhttp.NewHandler(kithttp.NewServer(
			requestJoinEndpoint(svc),
			decodeJoinReq,
			api.EncodeResponse,
			opts...,
		), "request-join").ServeHTTP)
		r.Post("/report", otelhttp.NewHandler(kithttp.NewServer(
			reportEndpoint(svc),
			decodeReportReq,
			api.EncodeResponse,
			opts...,
		), "report-diff").ServeHTTP)
		r.Route("/{cycleID}", func(r chi.Router) {
			r.Get("/validate", otelhttp.NewHandler(kithttp.NewServer(
				validateEndpoint(svc),
				decodeDownloadReq,
				api.EncodeResponse,
				opts...,
			), "validate").ServeHTTP)
			r.Get("/checkpoint", otelhttp.NewHandler(kithttp.NewServer(
				downloadCheckpointEndpoint(svc),
				decodeDownloadReq,
				api.EncodeResponse,
				opts...,
			), "download-checkpoint").ServeHTTP)
			r.Get("/plans/{plan}", otelhttp.NewHandler(kithttp.NewServer(
				downloadPlanEndpoint(svc),
				decodePlanReq,
				api.EncodeResponse,
				opts...,
			), "download-plan").ServeHTTP)
		})
	})

	mux.Route("/models/{modelID}", func(r chi.Router) {
		r.Get("/cycle", otelhttp.NewHandler(kithttp.NewServer(
			getCycleEndpoint(svc),
			decodeEntityReq("modelID"),
			api.EncodeResponse,
			opts...,
		), "get-cycle").ServeHTTP)
		r.Post("/cycles", otelhttp.NewHandler(kithttp.NewServer(
			createCycleEndpoint(svc),
			decodeCreateCycleReq,
			api.EncodeResponse,
			opts...,
		), "create-cycle").ServeHTTP)
		r.Get("/checkpoints", otelhttp.NewHandler(kithttp.NewServer(
			listCheckpointsEndpoint(svc),
			decodeListCheckpointsReq,
			api.EncodeResponse,
			opts...,
		), "list-checkpoints").ServeHTTP)
	})

	mux.Get("/health", supermq.Health("coordinator", instanceID))
	mux.Handle("/metrics", promhttp.Handler())

	return mux
}

func decodeJSON(r *http.Request, v any) error {
	if !strings.Contains(r.Header.Get("Content-Type"), api.ContentType) {
		return errors.Join(apiutil.ErrValidation, apiutil.ErrUnsupportedContentType)
	}
	if err := json.NewDecoder(http.MaxBytesReader(nil, r.Body, maxBodySize)).Decode(v); err != nil {
		return errors.Join(err, apiutil.ErrValidation)
	}

	return nil
}

func decodeHostProcessReq(_ context.Context, r *http.Request) (any, error) {
	var req hostProcessReq
	if err := decodeJSON(r, &req); err != nil {
		return nil, err
	}

	return req, nil
}

// decodeAuthReq accepts the token either in the body or as a bearer token.
func decodeAuthReq(_ context.Context, r *http.Request) (any, error) {
	var req authReq
	if r.ContentLength != 0 {
		if err := decodeJSON(r, &req); err != nil {
			return nil, err
		}
	}
	if req.Token == "" {
		req.Token = strings.TrimPrefix(r.Header.Get("Authorization"), bearerPrefix)
	}

	return req, nil
}

func decodeMetricsReq(_ context.Context, r *http.Request) (any, error) {
	req := metricsReq{workerID: chi.URLParam(r, "workerID")}
	if err := decodeJSON(r, &req); err != nil {
		return nil, err
	}

	return req, nil
}

func decodeJoinReq(_ context.Context, r *http.Request) (any, error) {
	var req joinReq
	if err := decodeJSON(r, &req); err != nil {
		return nil, err
	}

	return req, nil
}

func decodeDownloadReq(_ context.Context, r *http.Request) (any, error) {
	return downloadReq{
		workerID:   r.URL.Query().Get(workerIDKey),
		cycleID:    chi.URLParam(r, "cycleID"),
		requestKey: r.URL.Query().Get(requestKeyKey),
	}, nil
}

func decodePlanReq(_ context.Context, r *http.Request) (any, error) {
	return planReq{
		downloadReq: downloadReq{
			workerID:   r.URL.Query().Get(workerIDKey),
			cycleID:    chi.URLParam(r, "cycleID"),
			requestKey: r.URL.Query().Get(requestKeyKey),
			plan:       chi.URLParam(r, "plan"),
		},
	}, nil
}

func decodeReportReq(_ context.Context, r *http.Request) (any, error) {
	var req reportReq
	if err := decodeJSON(r, &req); err != nil {
		return nil, err
	}

	return req, nil
}

func decodeEntityReq(key string) kithttp.DecodeRequestFunc {
	return func(_ context.Context, r *http.Request) (any, error) {
		return entityReq{
			id: chi.URLParam(r, key),
		}, nil
	}
}

func decodeCreateCycleReq(_ context.Context, r *http.Request) (any, error) {
	req := createCycleReq{modelID: chi.URLParam(r, "modelID")}
	if r.ContentLength != 0 {
		if err := decodeJSON(r, &req); err != nil {
			return nil, err
		}
	}

	return req, nil
}

func decodeListCheckpointsReq(_ context.Context, r *http.Request) (any, error) {
	o, err := apiutil.ReadNumQuery[uint64](r, api.OffsetKey, api.DefOffset)
	if err != nil {
		return nil, errors.Join(apiutil.ErrValidation, err)
	}

	l, err := apiutil.ReadNumQuery[uint64](r, api.LimitKey, api.DefLimit)
	if err != nil {
		return nil, errors.Join(apiutil.ErrValidation, err)
	}

	return listCheckpointsReq{
		modelID: chi.URLParam(r, "modelID"),
		offset:  o,
		limit:   l,
	}, nil
}
