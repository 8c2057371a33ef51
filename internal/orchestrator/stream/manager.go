// Package stream manages the demo stream's lifecycle and capacity posture.
// It owns every stream write in the system; other components read stream
// state through the poller only.
package stream

import (
	"context"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/surgeproject/surge/internal/common/surgeerrors"
	"github.com/surgeproject/surge/internal/orchestrator/configuration"
	"github.com/surgeproject/surge/internal/orchestrator/domain"
	"github.com/surgeproject/surge/internal/orchestrator/poller"
	"github.com/surgeproject/surge/internal/orchestrator/provider"
)

// EnableWarmCapacityCommand is the operator action that flips the account
// level capability SetWarmCapacity prechecks. It is named in the precheck
// error so the failure is actionable.
const EnableWarmCapacityCommand = "surge account enable-warm"

// Handle identifies an ensured stream together with its last confirmed
// capacity posture. Handles are threaded by value; methods return updated
// copies rather than mutating.
type Handle struct {
	Name          string              `json:"name"`
	Mode          domain.CapacityMode `json:"mode"`
	CapacityUnits int                 `json:"capacity_units,omitempty"`
}

type Manager struct {
	streams provider.StreamAPI
	account provider.AccountAPI
	poller  *poller.Poller
	config  configuration.StreamConfiguration
}

func NewManager(
	streams provider.StreamAPI,
	account provider.AccountAPI,
	statusPoller *poller.Poller,
	config configuration.StreamConfiguration,
) *Manager {
	return &Manager{
		streams: streams,
		account: account,
		poller:  statusPoller,
		config:  config,
	}
}

// EnsureStream makes sure a healthy stream of the given name exists and
// returns a handle to it. An active stream is returned as-is; a stream mid
// transition is waited on; a failed or deleting stream is fully removed and
// recreated. Creation and deletion waits are bounded by OperationTimeout.
func (m *Manager) EnsureStream(ctx context.Context, name string) (Handle, error) {
	status, err := m.streams.DescribeStream(ctx, name)
	if err != nil {
		return Handle{}, errors.Wrapf(err, "describing stream %q", name)
	}

	switch status.State {
	case provider.StateActive:
		log.Infof("stream %s already active", name)
		return handleFrom(name, status), nil
	case provider.StatePending, provider.StateUpdating:
		log.Infof("stream %s is %s; waiting for it to become active", name, status.State)
		status, err = m.awaitActive(ctx, name)
		if err != nil {
			return Handle{}, err
		}
		return handleFrom(name, status), nil
	case provider.StateDeleting:
		log.Infof("stream %s is being deleted; waiting for removal before recreating", name)
		if err := m.awaitRemoval(ctx, name); err != nil {
			return Handle{}, err
		}
		return m.createStream(ctx, name)
	case provider.StateFailed:
		log.WithField("reason", status.Reason).Warnf("stream %s is failed; deleting and recreating", name)
		if err := m.streams.DeleteStream(ctx, name); err != nil {
			return Handle{}, errors.Wrapf(err, "deleting failed stream %q", name)
		}
		if err := m.awaitRemoval(ctx, name); err != nil {
			return Handle{}, err
		}
		return m.createStream(ctx, name)
	default:
		return m.createStream(ctx, name)
	}
}

// SetWarmCapacity moves the stream into provisioned-warm mode holding the
// requested units. The unit range is validated and the account capability
// prechecked before any provider call. If the provider reports the target
// capacity in its immediate response, no polling wait is performed;
// otherwise convergence is awaited up to WarmCapacityTimeout.
func (m *Manager) SetWarmCapacity(ctx context.Context, handle Handle, units int) (Handle, error) {
	if err := domain.ValidateWarmCapacityUnits(units); err != nil {
		return handle, err
	}

	enabled, err := m.account.WarmCapacityEnabled(ctx)
	if err != nil {
		return handle, errors.Wrap(err, "checking warm capacity capability")
	}
	if !enabled {
		return handle, &surgeerrors.ErrPrecheckFailed{
			Capability:  "warm capacity",
			Subject:     handle.Name,
			Remediation: EnableWarmCapacityCommand,
		}
	}

	if handle.Mode != domain.CapacityModeProvisionedWarm {
		log.Infof("switching stream %s to provisioned-warm mode", handle.Name)
		if err := m.streams.SetStreamMode(ctx, handle.Name, domain.CapacityModeProvisionedWarm); err != nil {
			return handle, errors.Wrapf(err, "switching stream %q to provisioned-warm mode", handle.Name)
		}
		if _, err := m.awaitActive(ctx, handle.Name); err != nil {
			return handle, err
		}
	}

	status, err := m.streams.DescribeStream(ctx, handle.Name)
	if err != nil {
		return handle, errors.Wrapf(err, "describing stream %q", handle.Name)
	}
	if status.CapacityUnits != units {
		log.Infof("setting stream %s warm capacity to %d units", handle.Name, units)
		if err := m.streams.SetCapacityUnits(ctx, handle.Name, units); err != nil {
			return handle, errors.Wrapf(err, "setting capacity of stream %q", handle.Name)
		}
		status, err = m.streams.DescribeStream(ctx, handle.Name)
		if err != nil {
			return handle, errors.Wrapf(err, "describing stream %q", handle.Name)
		}
	}

	if status.State != provider.StateActive || status.CapacityUnits != units {
		_, err = poller.Await(ctx, m.poller, poller.Spec[provider.StreamStatus]{
			ResourceType: "stream",
			ResourceName: handle.Name,
			Query:        m.capacityQuery(handle.Name, units),
			Targets:      []provider.State{provider.StateActive},
			Failures:     []provider.State{provider.StateDeleting, provider.StateFailed, provider.StateMissing},
			Timeout:      m.config.WarmCapacityTimeout,
			Interval:     m.config.PollInterval,
		})
		if err != nil {
			return handle, err
		}
	}

	log.Infof("stream %s holding %d warm capacity units", handle.Name, units)
	return Handle{Name: handle.Name, Mode: domain.CapacityModeProvisionedWarm, CapacityUnits: units}, nil
}

// TeardownStream deletes the stream and waits for full removal. Tearing down
// an already-absent stream is a success, not an error.
func (m *Manager) TeardownStream(ctx context.Context, handle Handle) error {
	status, err := m.streams.DescribeStream(ctx, handle.Name)
	if err != nil {
		return errors.Wrapf(err, "describing stream %q", handle.Name)
	}

	switch status.State {
	case provider.StateMissing:
		log.Infof("stream %s already absent", handle.Name)
		return nil
	case provider.StateDeleting:
		log.Infof("stream %s already being deleted; waiting", handle.Name)
	default:
		log.Infof("deleting stream %s", handle.Name)
		if err := m.streams.DeleteStream(ctx, handle.Name); err != nil {
			return errors.Wrapf(err, "deleting stream %q", handle.Name)
		}
	}
	return m.awaitRemoval(ctx, handle.Name)
}

// Describe reports the stream's live status. It is the read side used for
// state resynchronization; it never mutates.
func (m *Manager) Describe(ctx context.Context, name string) (provider.StreamStatus, error) {
	status, err := m.streams.DescribeStream(ctx, name)
	if err != nil {
		return provider.StreamStatus{}, errors.Wrapf(err, "describing stream %q", name)
	}
	return status, nil
}

func (m *Manager) createStream(ctx context.Context, name string) (Handle, error) {
	log.Infof("creating stream %s", name)
	if err := m.streams.CreateStream(ctx, name); err != nil {
		return Handle{}, errors.Wrapf(err, "creating stream %q", name)
	}
	status, err := m.awaitActive(ctx, name)
	if err != nil {
		return Handle{}, err
	}
	log.Infof("stream %s active", name)
	return handleFrom(name, status), nil
}

func (m *Manager) awaitActive(ctx context.Context, name string) (provider.StreamStatus, error) {
	return poller.Await(ctx, m.poller, poller.Spec[provider.StreamStatus]{
		ResourceType: "stream",
		ResourceName: name,
		Query: func(ctx context.Context) (provider.StreamStatus, error) {
			return m.streams.DescribeStream(ctx, name)
		},
		Targets:  []provider.State{provider.StateActive},
		Failures: []provider.State{provider.StateDeleting, provider.StateFailed},
		Timeout:  m.config.OperationTimeout,
		Interval: m.config.PollInterval,
	})
}

func (m *Manager) awaitRemoval(ctx context.Context, name string) error {
	_, err := poller.Await(ctx, m.poller, poller.Spec[provider.StreamStatus]{
		ResourceType: "stream",
		ResourceName: name,
		Query: func(ctx context.Context) (provider.StreamStatus, error) {
			return m.streams.DescribeStream(ctx, name)
		},
		Targets:  []provider.State{provider.StateMissing},
		Failures: []provider.State{provider.StateFailed},
		Timeout:  m.config.OperationTimeout,
		Interval: m.config.PollInterval,
	})
	return err
}

// capacityQuery views the stream as converged only once it is active and
// holding the requested units; an active stream at the wrong capacity is
// still updating from the caller's point of view.
func (m *Manager) capacityQuery(name string, units int) func(ctx context.Context) (provider.StreamStatus, error) {
	return func(ctx context.Context) (provider.StreamStatus, error) {
		status, err := m.streams.DescribeStream(ctx, name)
		if err != nil {
			return status, err
		}
		if status.State == provider.StateActive && status.CapacityUnits != units {
			status.State = provider.StateUpdating
		}
		return status, nil
	}
}

func handleFrom(name string, status provider.StreamStatus) Handle {
	return Handle{Name: name, Mode: status.Mode, CapacityUnits: status.CapacityUnits}
}
