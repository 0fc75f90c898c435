package sdk

import (
	"encoding/json"
	"net/http"
	"time"
)

const workersEndpoint = "/workers"

type Worker struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Ping        float64   `json:"ping"`
	AvgDownload float64   `json:"avg_download"`
	AvgUpload   float64   `json:"avg_upload"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type Auth struct {
	Worker            Worker `json:"worker"`
	RequiresSpeedTest bool   `json:"requires_speed_test"`
}

type Metrics struct {
	Ping     float64 `json:"ping,omitempty"`
	Download float64 `json:"download,omitempty"`
	Upload   float64 `json:"upload,omitempty"`
}

func (sdk *flSDK) Authenticate(token, modelName, modelVersion string) (Auth, error) {
	data, err := json.Marshal(map[string]string{
		"model_name":    modelName,
		"model_version": modelVersion,
	})
	if err != nil {
		return Auth{}, err
	}

	var a Auth
	err = sdk.doJSON(request{
		method:   http.MethodPost,
		url:      sdk.coordinatorURL + workersEndpoint + "/authenticate",
		data:     data,
		token:    token,
		expected: http.StatusOK,
	}, &a)

	return a, err
}

func (sdk *flSDK) ReportMetrics(workerID string, m Metrics) (Worker, error) {
	data, err := json.Marshal(m)
	if err != nil {
		return Worker{}, err
	}

	var w Worker
	err = sdk.doJSON(request{
		method:   http.MethodPost,
		url:      sdk.coordinatorURL + workersEndpoint + "/" + workerID + "/metrics",
		data:     data,
		expected: http.StatusOK,
	}, &w)

	return w, err
}
