package api

import (
	"context"
	"errors"
	"time"

	"github.com/absmach/fedcycle/coordinator"
	pkgerrors "github.com/absmach/fedcycle/pkg/errors"
	apiutil "github.com/absmach/supermq/api/http/util"
	"github.com/go-kit/kit/endpoint"
)

const reportSuccess = "success"

func hostProcessEndpoint(svc coordinator.Service) endpoint.Endpoint {
	return func(ctx context.Context, request any) (any, error) {
		req, ok := request.(hostProcessReq)
		if !ok {
			return hostProcessResponse{}, errors.Join(apiutil.ErrValidation, pkgerrors.ErrInvalidData)
		}
		if err := req.validate(); err != nil {
			return hostProcessResponse{}, errors.Join(apiutil.ErrValidation, err)
		}

		p, c, err := svc.HostProcess(ctx, coordinator.HostRequest{
			Name:          req.Name,
			Version:       req.Version,
			Model:         req.Model,
			Plans:         req.Plans,
			AveragingPlan: req.AveragingPlan,
			ClientConfig:  req.ClientConfig,
			ServerConfig:  req.ServerConfig,
		})
		if err != nil {
			return hostProcessResponse{}, err
		}
		p.Plans = nil
		p.AveragingPlan = nil

		return hostProcessResponse{Process: p, Cycle: c}, nil
	}
}

func authenticateEndpoint(svc coordinator.Service) endpoint.Endpoint {
	return func(ctx context.Context, request any) (any, error) {
		req, ok := request.(authReq)
		if !ok {
			return authResponse{}, errors.Join(apiutil.ErrValidation, pkgerrors.ErrInvalidData)
		}
		if err := req.validate(); err != nil {
			return authResponse{}, errors.Join(apiutil.ErrValidation, err)
		}

		res, err := svc.Authenticate(ctx, coordinator.AuthRequest{
			Token:        req.Token,
			ModelName:    req.ModelName,
			ModelVersion: req.ModelVersion,
		})
		if err != nil {
			return authResponse{}, err
		}

		return authResponse{AuthResponse: res}, nil
	}
}

func reportMetricsEndpoint(svc coordinator.Service) endpoint.Endpoint {
	return func(ctx context.Context, request any) (any, error) {
		req, ok := request.(metricsReq)
		if !ok {
			return workerResponse{}, errors.Join(apiutil.ErrValidation, pkgerrors.ErrInvalidData)
		}
		if err := req.validate(); err != nil {
			return workerResponse{}, errors.Join(apiutil.ErrValidation, err)
		}

		w, err := svc.ReportMetrics(ctx, req.workerID, coordinator.Metrics{
			Ping:     req.Ping,
			Download: req.Download,
			Upload:   req.Upload,
		})
		if err != nil {
			return workerResponse{}, err
		}

		return workerResponse{Worker: w}, nil
	}
}

func requestJoinEndpoint(svc coordinator.Service) endpoint.Endpoint {
	return func(ctx context.Context, request any) (any, error) {
		req, ok := request.(joinReq)
		if !ok {
			return joinResponse{}, errors.Join(apiutil.ErrValidation, pkgerrors.ErrInvalidData)
		}
		if err := req.validate(); err != nil {
			return joinResponse{}, errors.Join(apiutil.ErrValidation, err)
		}

		res, err := svc.RequestJoin(ctx, coordinator.JoinRequest{
			WorkerID:     req.WorkerID,
			ModelName:    req.ModelName,
			ModelVersion: req.ModelVersion,
			Metrics: coordinator.Metrics{
				Ping:     req.Ping,
				Download: req.Download,
				Upload:   req.Upload,
			},
		})
		if err != nil {
			return joinResponse{}, err
		}

		return joinResponse{JoinResponse: res}, nil
	}
}

func validateEndpoint(svc coordinator.Service) endpoint.Endpoint {
	return func(ctx context.Context, request any) (any, error) {
		req, ok := request.(downloadReq)
		if !ok {
			return validateResponse{}, errors.Join(apiutil.ErrValidation, pkgerrors.ErrInvalidData)
		}
		if err := req.validate(); err != nil {
			return validateResponse{}, errors.Join(apiutil.ErrValidation, err)
		}

		return validateResponse{
			Valid: svc.Validate(ctx, req.workerID, req.cycleID, req.requestKey),
		}, nil
	}
}

func downloadCheckpointEndpoint(svc coordinator.Service) endpoint.Endpoint {
	return func(ctx context.Context, request any) (any, error) {
		req, ok := request.(downloadReq)
		if !ok {
			return checkpointResponse{}, errors.Join(apiutil.ErrValidation, pkgerrors.ErrInvalidData)
		}
		if err := req.validate(); err != nil {
			return checkpointResponse{}, errors.Join(apiutil.ErrValidation, err)
		}

		cp, err := svc.DownloadCheckpoint(ctx, req.workerID, req.cycleID, req.requestKey)
		if err != nil {
			return checkpointResponse{}, err
		}

		return checkpointResponse{Checkpoint: cp}, nil
	}
}

func downloadPlanEndpoint(svc coordinator.Service) endpoint.Endpoint {
	return func(ctx context.Context, request any) (any, error) {
		req, ok := request.(planReq)
		if !ok {
			return planResponse{}, errors.Join(apiutil.ErrValidation, pkgerrors.ErrInvalidData)
		}
		if err := req.validate(); err != nil {
			return planResponse{}, errors.Join(apiutil.ErrValidation, err)
		}

		plan, err := svc.DownloadPlan(ctx, req.workerID, req.cycleID, req.requestKey, req.plan)
		if err != nil {
			return planResponse{}, err
		}

		return planResponse{name: req.plan, plan: plan}, nil
	}
}

func reportEndpoint(svc coordinator.Service) endpoint.Endpoint {
	return func(ctx context.Context, request any) (any, error) {
		req, ok := request.(reportReq)
		if !ok {
			return reportResponse{}, errors.Join(apiutil.ErrValidation, pkgerrors.ErrInvalidData)
		}
		if err := req.validate(); err != nil {
			return reportResponse{}, errors.Join(apiutil.ErrValidation, err)
		}

		if err := svc.SubmitDiff(ctx, req.WorkerID, req.RequestKey, req.Diff); err != nil {
			return reportResponse{}, err
		}

		return reportResponse{Status: reportSuccess}, nil
	}
}

func getCycleEndpoint(svc coordinator.Service) endpoint.Endpoint {
	return func(ctx context.Context, request any) (any, error) {
		req, ok := request.(entityReq)
		if !ok {
			return cycleResponse{}, errors.Join(apiutil.ErrValidation, pkgerrors.ErrInvalidData)
		}
		if err := req.validate(); err != nil {
			return cycleResponse{}, errors.Join(apiutil.ErrValidation, err)
		}

		c, err := svc.GetCycle(ctx, req.id)
		if err != nil {
			return cycleResponse{}, err
		}

		return cycleResponse{Cycle: c}, nil
	}
}

func getProcessCycleEndpoint(svc coordinator.Service) endpoint.Endpoint {
	return func(ctx context.Context, request any) (any, error) {
		req, ok := request.(entityReq)
		if !ok {
			return cycleResponse{}, errors.Join(apiutil.ErrValidation, pkgerrors.ErrInvalidData)
		}
		if err := req.validate(); err != nil {
			return cycleResponse{}, errors.Join(apiutil.ErrValidation, err)
		}

		c, err := svc.GetProcessCycle(ctx, req.id)
		if err != nil {
			return cycleResponse{}, err
		}

		return cycleResponse{Cycle: c}, nil
	}
}

func createCycleEndpoint(svc coordinator.Service) endpoint.Endpoint {
	return func(ctx context.Context, request any) (any, error) {
		req, ok := request.(createCycleReq)
		if !ok {
			return cycleResponse{}, errors.Join(apiutil.ErrValidation, pkgerrors.ErrInvalidData)
		}
		if err := req.validate(); err != nil {
			return cycleResponse{}, errors.Join(apiutil.ErrValidation, err)
		}

		c, err := svc.CreateCycle(ctx, req.modelID, req.Version, req.MaxWorkers, req.MinWorkers, time.Duration(req.Duration)*time.Second)
		if err != nil {
			return cycleResponse{}, err
		}

		return cycleResponse{Cycle: c, created: true}, nil
	}
}

func listCheckpointsEndpoint(svc coordinator.Service) endpoint.Endpoint {
	return func(ctx context.Context, request any) (any, error) {
		req, ok := request.(listCheckpointsReq)
		if !ok {
			return listCheckpointsResponse{}, errors.Join(apiutil.ErrValidation, pkgerrors.ErrInvalidData)
		}
		if err := req.validate(); err != nil {
			return listCheckpointsResponse{}, errors.Join(apiutil.ErrValidation, err)
		}

		page, err := svc.ListCheckpoints(ctx, req.modelID, req.offset, req.limit)
		if err != nil {
			return listCheckpointsResponse{}, err
		}

		return listCheckpointsResponse{CheckpointPage: page}, nil
	}
}
