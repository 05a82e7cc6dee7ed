package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/playmesh/playmesh/internal/config"
	"github.com/playmesh/playmesh/models"
)

// runCommand executes the CLI binary, streaming stdout and stderr into the
// given writers. Swapped out in tests.
type runCommand func(ctx context.Context, bin string, args []string, stdout, stderr *ringBuffer) error

func execRun(ctx context.Context, bin string, args []string, stdout, stderr *ringBuffer) error {
	cmd := exec.CommandContext(ctx, bin, args...)
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	return cmd.Run()
}

// CloudPad drives hosts through the cloudpad command-line tool. Placement is
// a named region; the CLI owns node selection inside the region.
type CloudPad struct {
	binary       string
	configPath   string
	projectID    string
	run          runCommand
	pollInterval time.Duration
}

// NewCloudPad creates the adapter from configuration.
func NewCloudPad(cfg config.CloudPadConfig) *CloudPad {
	return &CloudPad{
		binary:       cfg.BinaryPath,
		configPath:   cfg.ConfigPath,
		projectID:    cfg.ProjectID,
		run:          execRun,
		pollInterval: defaultPollInterval,
	}
}

// Name implements Driver.
func (c *CloudPad) Name() models.Provider {
	return models.ProviderCloudPad
}

// translateCloudPadState maps CLI status strings into the shared lifecycle
// vocabulary. Unrecognized strings map to unknown.
func translateCloudPadState(s string) models.LifecycleState {
	switch strings.ToLower(s) {
	case "running":
		return models.StateRunning
	case "provisioning", "starting":
		return models.StateCreating
	case "stopped":
		return models.StateStopped
	case "error":
		return models.StateFailed
	case "terminated":
		return models.StateDestroyed
	default:
		return models.StateUnknown
	}
}

// Create implements Driver. req.Placement carries the region code.
func (c *CloudPad) Create(ctx context.Context, req CreateRequest) (*CreateResult, error) {
	if req.Placement == "" {
		return nil, &Error{Provider: c.Name(), Op: "create", Msg: "no region selected", Retryable: false}
	}
	spec := models.TierSpecs[req.Tier]
	args := []string{
		"create",
		"--name", req.Name,
		"--cpu", strconv.Itoa(spec.VCPU),
		"--memory", strconv.Itoa(spec.MemoryGiB),
		"--region", req.Placement,
		"--auto-stop-timeout", strconv.Itoa(int(req.AutoStopTimeout.Seconds())),
	}

	stdout, stderr, err := c.invoke(ctx, "create", args)
	if err != nil {
		return nil, err
	}

	handle := strings.TrimSpace(stdout.String())
	if handle == "" {
		// The CLI prints nothing but the instance name on success.
		handle = req.Name
	}
	return &CreateResult{
		Handle: handle,
		Metadata: map[string]string{
			"region":  req.Placement,
			"cli_log": tail(stdout.String() + stderr.String()),
		},
	}, nil
}

type cloudPadDescribe struct {
	Name      string `json:"name"`
	Status    string `json:"status"`
	IPAddress string `json:"ip_address"`
	Region    string `json:"region"`
}

// Describe implements Driver. The CLI prints a JSON document on stdout.
func (c *CloudPad) Describe(ctx context.Context, handle string) (*DescribeResult, error) {
	stdout, _, err := c.invoke(ctx, "describe", []string{"describe", handle, "--output", "json"})
	if err != nil {
		return nil, err
	}

	var desc cloudPadDescribe
	if jsonErr := json.Unmarshal([]byte(stdout.String()), &desc); jsonErr != nil {
		return nil, &Error{Provider: c.Name(), Op: "describe", Msg: "unparseable CLI output", Retryable: false, Err: jsonErr}
	}
	return &DescribeResult{
		State:    translateCloudPadState(desc.Status),
		RawState: desc.Status,
		Address:  desc.IPAddress,
	}, nil
}

// Start implements Driver.
func (c *CloudPad) Start(ctx context.Context, handle string) error {
	_, _, err := c.invoke(ctx, "start", []string{"start", handle})
	return err
}

// Stop implements Driver.
func (c *CloudPad) Stop(ctx context.Context, handle string) error {
	_, _, err := c.invoke(ctx, "stop", []string{"stop", handle})
	return err
}

// Destroy implements Driver.
func (c *CloudPad) Destroy(ctx context.Context, handle string) error {
	_, stderr, err := c.invoke(ctx, "destroy", []string{"destroy", handle, "--yes"})
	if err != nil {
		if strings.Contains(stderr.String(), "not found") {
			return fmt.Errorf("destroy %s: %w", handle, ErrNotFound)
		}
		return err
	}
	return nil
}

// WaitReady implements Driver.
func (c *CloudPad) WaitReady(ctx context.Context, handle string, maxWait time.Duration) (*DescribeResult, error) {
	return waitReady(ctx, c, handle, maxWait, c.pollInterval)
}

func (c *CloudPad) invoke(ctx context.Context, op string, args []string) (*ringBuffer, *ringBuffer, error) {
	if c.configPath != "" {
		args = append(args, "--config", c.configPath)
	}
	if c.projectID != "" {
		args = append(args, "--project", c.projectID)
	}

	stdout := newRingBuffer(cliLogCapacity)
	stderr := newRingBuffer(cliLogCapacity)

	if err := c.run(ctx, c.binary, args, stdout, stderr); err != nil {
		return stdout, stderr, &Error{
			Provider:  c.Name(),
			Op:        op,
			Msg:       fmt.Sprintf("cli exited abnormally: %s", tail(stderr.String())),
			Retryable: false,
			Err:       err,
		}
	}
	return stdout, stderr, nil
}

// tail trims CLI output to a size fit for provider metadata.
func tail(s string) string {
	const max = 1024
	s = strings.TrimSpace(s)
	if len(s) <= max {
		return s
	}
	return s[len(s)-max:]
}
