package api

import (
	"net/http"
	"strconv"

	"github.com/absmach/fedcycle/coordinator"
	"github.com/absmach/fedcycle/pkg/api"
	"github.com/absmach/fedcycle/pkg/fl"
	"github.com/absmach/supermq"
)

var (
	_ supermq.Response   = (*hostProcessResponse)(nil)
	_ supermq.Response   = (*authResponse)(nil)
	_ supermq.Response   = (*workerResponse)(nil)
	_ supermq.Response   = (*joinResponse)(nil)
	_ supermq.Response   = (*validateResponse)(nil)
	_ api.BinaryResponse = (*checkpointResponse)(nil)
	_ api.BinaryResponse = (*planResponse)(nil)
	_ supermq.Response   = (*reportResponse)(nil)
	_ supermq.Response   = (*cycleResponse)(nil)
	_ supermq.Response   = (*listCheckpointsResponse)(nil)
)

type hostProcessResponse struct {
	Process fl.Process `json:"process"`
	Cycle   fl.Cycle   `json:"cycle"`
}

func (res hostProcessResponse) Code() int {
	return http.StatusCreated
}

func (res hostProcessResponse) Headers() map[string]string {
	return map[string]string{
		"Location": "/processes/" + res.Process.ID,
	}
}

func (res hostProcessResponse) Empty() bool {
	return false
}

type authResponse struct {
	coordinator.AuthResponse
}

func (res authResponse) Code() int {
	return http.StatusOK
}

func (res authResponse) Headers() map[string]string {
	return map[string]string{}
}

func (res authResponse) Empty() bool {
	return false
}

type workerResponse struct {
	fl.Worker
}

func (res workerResponse) Code() int {
	return http.StatusOK
}

func (res workerResponse) Headers() map[string]string {
	return map[string]string{}
}

func (res workerResponse) Empty() bool {
	return false
}

type joinResponse struct {
	coordinator.JoinResponse
}

func (res joinResponse) Code() int {
	return http.StatusOK
}

func (res joinResponse) Headers() map[string]string {
	return map[string]string{}
}

func (res joinResponse) Empty() bool {
	return false
}

type validateResponse struct {
	Valid bool `json:"valid"`
}

func (res validateResponse) Code() int {
	return http.StatusOK
}

func (res validateResponse) Headers() map[string]string {
	return map[string]string{}
}

func (res validateResponse) Empty() bool {
	return false
}

type checkpointResponse struct {
	fl.Checkpoint
}

func (res checkpointResponse) Code() int {
	return http.StatusOK
}

func (res checkpointResponse) Headers() map[string]string {
	return map[string]string{
		"X-Model-ID":          res.ModelID,
		"X-Checkpoint-Number": strconv.FormatUint(res.Number, 10),
	}
}

func (res checkpointResponse) Empty() bool {
	return false
}

func (res checkpointResponse) Body() []byte {
	return res.Payload
}

type planResponse struct {
	name string
	plan []byte
}

func (res planResponse) Code() int {
	return http.StatusOK
}

func (res planResponse) Headers() map[string]string {
	return map[string]string{
		"Content-Disposition": "attachment; filename=" + strconv.Quote(res.name),
	}
}

func (res planResponse) Empty() bool {
	return false
}

func (res planResponse) Body() []byte {
	return res.plan
}

type reportResponse struct {
	Status string `json:"status"`
}

func (res reportResponse) Code() int {
	return http.StatusOK
}

func (res reportResponse) Headers() map[string]string {
	return map[string]string{}
}

func (res reportResponse) Empty() bool {
	return false
}

type cycleResponse struct {
	fl.Cycle
	created bool
}

func (res cycleResponse) Code() int {
	if res.created {
		return http.StatusCreated
	}

	return http.StatusOK
}

func (res cycleResponse) Headers() map[string]string {
	if res.created {
		return map[string]string{
			"Location": "/models/" + res.ModelID + "/cycle",
		}
	}

	return map[string]string{}
}

func (res cycleResponse) Empty() bool {
	return false
}

type listCheckpointsResponse struct {
	fl.CheckpointPage
}

func (res listCheckpointsResponse) Code() int {
	return http.StatusOK
}

func (res listCheckpointsResponse) Headers() map[string]string {
	return map[string]string{}
}

func (res listCheckpointsResponse) Empty() bool {
	return false
}
