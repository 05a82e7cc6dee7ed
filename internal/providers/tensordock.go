package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/playmesh/playmesh/internal/config"
	"github.com/playmesh/playmesh/internal/placement"
	"github.com/playmesh/playmesh/models"
)

const (
	tensorDockConnectTimeout = 15 * time.Second
	tensorDockTotalTimeout   = 60 * time.Second
)

// TensorDock drives the TensorDock marketplace REST API. Instances are
// placed on explicit inventory nodes selected by the optimizer.
type TensorDock struct {
	baseURL      string
	token        string
	client       *http.Client
	pollInterval time.Duration
}

// NewTensorDock creates the adapter from configuration.
func NewTensorDock(cfg config.TensorDockConfig) *TensorDock {
	transport := &http.Transport{
		DialContext: (&net.Dialer{Timeout: tensorDockConnectTimeout}).DialContext,
	}
	return &TensorDock{
		baseURL: cfg.APIURL,
		token:   cfg.APIToken,
		client: &http.Client{
			Timeout:   tensorDockTotalTimeout,
			Transport: transport,
		},
		pollInterval: defaultPollInterval,
	}
}

// Name implements Driver.
func (t *TensorDock) Name() models.Provider {
	return models.ProviderTensorDock
}

// translateTensorDockState maps vendor status strings into the shared
// lifecycle vocabulary. The mapping is total; unrecognized strings map to
// unknown.
func translateTensorDockState(s string) models.LifecycleState {
	switch s {
	case "active":
		return models.StateRunning
	case "building":
		return models.StateCreating
	case "stopped":
		return models.StateStopped
	case "error":
		return models.StateFailed
	case "deleted":
		return models.StateDestroyed
	default:
		return models.StateUnknown
	}
}

// Inventory fetches the current hostnode inventory.
func (t *TensorDock) Inventory(ctx context.Context) ([]placement.InventoryNode, error) {
	var nodes []placement.InventoryNode
	if err := t.do(ctx, http.MethodGet, "/inventory", nil, &nodes); err != nil {
		return nil, err
	}
	return nodes, nil
}

type tensorDockCreateBody struct {
	Name         string            `json:"name"`
	Hostnode     string            `json:"hostnode"`
	VCPU         int               `json:"vcpu"`
	MemoryGiB    int               `json:"memory_gib"`
	GPUCount     int               `json:"gpu_count"`
	SSHPublicKey string            `json:"ssh_public_key,omitempty"`
	Tags         map[string]string `json:"tags,omitempty"`
}

type tensorDockInstance struct {
	ID        string `json:"id"`
	Status    string `json:"status"`
	IPAddress string `json:"ip_address"`
	Hostnode  string `json:"hostnode"`
}

// Create implements Driver. req.Placement must carry the inventory node ID.
func (t *TensorDock) Create(ctx context.Context, req CreateRequest) (*CreateResult, error) {
	if req.Placement == "" {
		return nil, &Error{Provider: t.Name(), Op: "create", Msg: "no hostnode selected", Retryable: false}
	}
	spec := models.TierSpecs[req.Tier]
	body := tensorDockCreateBody{
		Name:         req.Name,
		Hostnode:     req.Placement,
		VCPU:         spec.VCPU,
		MemoryGiB:    spec.MemoryGiB,
		GPUCount:     spec.GPUCount,
		SSHPublicKey: req.SSHPublicKey,
		Tags:         req.Tags,
	}

	var inst tensorDockInstance
	if err := t.do(ctx, http.MethodPost, "/instances", body, &inst); err != nil {
		return nil, err
	}
	return &CreateResult{
		Handle: inst.ID,
		Metadata: map[string]string{
			"hostnode": inst.Hostnode,
		},
	}, nil
}

// Describe implements Driver.
func (t *TensorDock) Describe(ctx context.Context, handle string) (*DescribeResult, error) {
	var inst tensorDockInstance
	if err := t.do(ctx, http.MethodGet, "/instances/"+handle, nil, &inst); err != nil {
		return nil, err
	}
	return &DescribeResult{
		State:    translateTensorDockState(inst.Status),
		RawState: inst.Status,
		Address:  inst.IPAddress,
	}, nil
}

// Start implements Driver.
func (t *TensorDock) Start(ctx context.Context, handle string) error {
	return t.do(ctx, http.MethodPost, "/instances/"+handle+"/start", nil, nil)
}

// Stop implements Driver.
func (t *TensorDock) Stop(ctx context.Context, handle string) error {
	return t.do(ctx, http.MethodPost, "/instances/"+handle+"/stop", nil, nil)
}

// Destroy implements Driver.
func (t *TensorDock) Destroy(ctx context.Context, handle string) error {
	return t.do(ctx, http.MethodDelete, "/instances/"+handle, nil, nil)
}

// WaitReady implements Driver.
func (t *TensorDock) WaitReady(ctx context.Context, handle string, maxWait time.Duration) (*DescribeResult, error) {
	return waitReady(ctx, t, handle, maxWait, t.pollInterval)
}

func (t *TensorDock) do(ctx context.Context, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return &Error{Provider: t.Name(), Op: method + " " + path, Msg: "encode request", Retryable: false, Err: err}
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, t.baseURL+path, reader)
	if err != nil {
		return &Error{Provider: t.Name(), Op: method + " " + path, Msg: "build request", Retryable: false, Err: err}
	}
	req.Header.Set("Authorization", "Bearer "+t.token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return &Error{Provider: t.Name(), Op: method + " " + path, Msg: "transport failure", Retryable: true, Err: err}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("%s %s: %w", method, path, ErrNotFound)
	case resp.StatusCode >= 500:
		return &Error{
			Provider:  t.Name(),
			Op:        method + " " + path,
			Msg:       fmt.Sprintf("server error %d", resp.StatusCode),
			Retryable: true,
		}
	case resp.StatusCode >= 400:
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &Error{
			Provider:  t.Name(),
			Op:        method + " " + path,
			Msg:       fmt.Sprintf("rejected with %d: %s", resp.StatusCode, bytes.TrimSpace(payload)),
			Retryable: false,
		}
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return &Error{Provider: t.Name(), Op: method + " " + path, Msg: "decode response", Retryable: false, Err: err}
		}
	}
	return nil
}
