// Package fake is an in-memory provider for tests and dry runs. Streams and
// fleets converge after a configurable number of describes, so orchestration
// logic can be exercised end to end without a cloud account.
package fake

import (
	"context"
	"sync"

	"github.com/pkg/errors"
	"golang.org/x/exp/maps"

	"github.com/surgeproject/surge/internal/common/surgeerrors"
	"github.com/surgeproject/surge/internal/orchestrator/domain"
	"github.com/surgeproject/surge/internal/orchestrator/provider"
)

type Config struct {
	// ConvergeAfterPolls is how many describes report a transition in flight
	// before it lands. Zero lands every transition on the first describe.
	ConvergeAfterPolls int
	// WarmCapacityEnabled seeds the account capability.
	WarmCapacityEnabled bool
	// Fleets are registered at construction, at rest. The orchestrator
	// requires its fleet to exist before an execution starts.
	Fleets []provider.FleetRef
}

// Provider bundles the four fake services. The services are exported so
// tests can script failures and read counters directly.
type Provider struct {
	Streams      *StreamService
	Fleets       *FleetService
	Capabilities *AccountService
	Telemetry    *MetricsService
}

var _ provider.Provider = &Provider{}

func NewProvider(cfg Config) *Provider {
	p := &Provider{
		Streams:      &StreamService{convergeAfter: cfg.ConvergeAfterPolls, records: map[string]*streamRecord{}},
		Fleets:       &FleetService{convergeAfter: cfg.ConvergeAfterPolls, records: map[string]*fleetRecord{}},
		Capabilities: &AccountService{enabled: cfg.WarmCapacityEnabled},
		Telemetry:    &MetricsService{},
	}
	for _, ref := range cfg.Fleets {
		p.Fleets.Register(ref, 0)
	}
	return p
}

func (p *Provider) Stream() provider.StreamAPI   { return p.Streams }
func (p *Provider) Fleet() provider.FleetAPI     { return p.Fleets }
func (p *Provider) Account() provider.AccountAPI { return p.Capabilities }
func (p *Provider) Metrics() provider.MetricsAPI { return p.Telemetry }

type StreamCounters struct {
	Creates         int
	Describes       int
	Deletes         int
	ModeChanges     int
	CapacityChanges int
}

type streamRecord struct {
	state     provider.State
	reason    string
	mode      domain.CapacityMode
	units     int
	pollsLeft int
}

type StreamService struct {
	mu            sync.Mutex
	convergeAfter int
	records       map[string]*streamRecord
	counters      StreamCounters
}

var _ provider.StreamAPI = &StreamService{}

func (s *StreamService) CreateStream(_ context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counters.Creates++
	if _, exists := s.records[name]; exists {
		return errors.Errorf("stream %q already exists", name)
	}
	s.records[name] = &streamRecord{
		state:     provider.StatePending,
		mode:      domain.CapacityModeStandard,
		pollsLeft: s.convergeAfter,
	}
	return nil
}

func (s *StreamService) DescribeStream(_ context.Context, name string) (provider.StreamStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counters.Describes++
	r, ok := s.records[name]
	if !ok {
		return provider.StreamStatus{State: provider.StateMissing}, nil
	}
	if r.pollsLeft > 0 {
		r.pollsLeft--
		return streamStatus(r), nil
	}
	switch r.state {
	case provider.StatePending, provider.StateUpdating:
		r.state = provider.StateActive
	case provider.StateDeleting:
		delete(s.records, name)
		return provider.StreamStatus{State: provider.StateMissing}, nil
	}
	return streamStatus(r), nil
}

func (s *StreamService) DeleteStream(_ context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counters.Deletes++
	r, ok := s.records[name]
	if !ok {
		// deleting an absent stream is a no-op, like idempotent providers
		return nil
	}
	r.state = provider.StateDeleting
	r.reason = ""
	r.pollsLeft = s.convergeAfter
	return nil
}

func (s *StreamService) SetStreamMode(_ context.Context, name string, mode domain.CapacityMode) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counters.ModeChanges++
	r, ok := s.records[name]
	if !ok {
		return &surgeerrors.ErrNotFound{Type: "stream", Value: name}
	}
	r.mode = mode
	if mode == domain.CapacityModeProvisionedWarm && r.units == 0 {
		r.units = domain.MinWarmCapacityUnits
	}
	r.state = provider.StateUpdating
	r.pollsLeft = s.convergeAfter
	return nil
}

func (s *StreamService) SetCapacityUnits(_ context.Context, name string, units int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counters.CapacityChanges++
	r, ok := s.records[name]
	if !ok {
		return &surgeerrors.ErrNotFound{Type: "stream", Value: name}
	}
	r.units = units
	r.state = provider.StateUpdating
	r.pollsLeft = s.convergeAfter
	return nil
}

// FailStream forces the stream into a terminal failed state.
func (s *StreamService) FailStream(name string, reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r, ok := s.records[name]; ok {
		r.state = provider.StateFailed
		r.reason = reason
		r.pollsLeft = 0
	}
}

func (s *StreamService) Counters() StreamCounters {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.counters
}

func streamStatus(r *streamRecord) provider.StreamStatus {
	return provider.StreamStatus{State: r.state, Reason: r.reason, Mode: r.mode, CapacityUnits: r.units}
}

type FleetCounters struct {
	Describes    int
	Propagations int
	DesiredSets  int
}

type fleetRecord struct {
	state     provider.State
	reason    string
	desired   int
	running   int
	pollsLeft int
	config    *provider.RuntimeConfig
}

type FleetService struct {
	mu            sync.Mutex
	convergeAfter int
	records       map[string]*fleetRecord
	counters      FleetCounters
}

var _ provider.FleetAPI = &FleetService{}

// Register adds a fleet at the given size, already stable.
func (f *FleetService) Register(ref provider.FleetRef, running int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records[ref.String()] = &fleetRecord{
		state:   provider.StateActive,
		desired: running,
		running: running,
	}
}

func (f *FleetService) DescribeFleet(_ context.Context, ref provider.FleetRef) (provider.FleetStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.counters.Describes++
	r, ok := f.records[ref.String()]
	if !ok {
		return provider.FleetStatus{State: provider.StateMissing}, nil
	}
	if r.pollsLeft > 0 {
		r.pollsLeft--
		return fleetStatus(r, false), nil
	}
	if r.state == provider.StateActive {
		r.running = r.desired
	}
	return fleetStatus(r, true), nil
}

func (f *FleetService) PropagateRuntimeConfig(_ context.Context, ref provider.FleetRef, cfg provider.RuntimeConfig) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.counters.Propagations++
	r, ok := f.records[ref.String()]
	if !ok {
		return &surgeerrors.ErrNotFound{Type: "fleet", Value: ref.String()}
	}
	r.config = &cfg
	// a config change cycles the fleet like a rolling deployment
	r.pollsLeft = f.convergeAfter
	return nil
}

func (f *FleetService) SetDesiredWorkers(_ context.Context, ref provider.FleetRef, desired int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.counters.DesiredSets++
	r, ok := f.records[ref.String()]
	if !ok {
		return &surgeerrors.ErrNotFound{Type: "fleet", Value: ref.String()}
	}
	r.desired = desired
	r.pollsLeft = f.convergeAfter
	return nil
}

// FailFleet forces the fleet into a terminal failed state.
func (f *FleetService) FailFleet(ref provider.FleetRef, reason string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if r, ok := f.records[ref.String()]; ok {
		r.state = provider.StateFailed
		r.reason = reason
		r.pollsLeft = 0
	}
}

func (f *FleetService) Counters() FleetCounters {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.counters
}

func fleetStatus(r *fleetRecord, converged bool) provider.FleetStatus {
	status := provider.FleetStatus{
		State:           r.state,
		Reason:          r.reason,
		DesiredWorkers:  r.desired,
		RunningWorkers:  r.running,
		RolloutComplete: converged,
	}
	if pending := r.desired - r.running; !converged && pending > 0 {
		status.PendingWorkers = pending
	}
	if r.config != nil {
		cfg := *r.config
		status.ActiveConfig = &cfg
	}
	return status
}

type AccountCounters struct {
	Checks  int
	Enables int
}

type AccountService struct {
	mu       sync.Mutex
	enabled  bool
	counters AccountCounters
}

var _ provider.AccountAPI = &AccountService{}

func (a *AccountService) WarmCapacityEnabled(_ context.Context) (bool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.counters.Checks++
	return a.enabled, nil
}

func (a *AccountService) EnableWarmCapacity(_ context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.counters.Enables++
	a.enabled = true
	return nil
}

func (a *AccountService) Counters() AccountCounters {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.counters
}

type PublishedMetric struct {
	Name       string
	Value      float64
	Dimensions map[string]string
}

type MetricsService struct {
	mu        sync.Mutex
	err       error
	published []PublishedMetric
}

var _ provider.MetricsAPI = &MetricsService{}

func (m *MetricsService) PutMetric(_ context.Context, name string, value float64, dimensions map[string]string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.published = append(m.published, PublishedMetric{Name: name, Value: value, Dimensions: maps.Clone(dimensions)})
	return nil
}

// FailWith makes every subsequent publish return err.
func (m *MetricsService) FailWith(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

func (m *MetricsService) Published() []PublishedMetric {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]PublishedMetric, len(m.published))
	copy(out, m.published)
	return out
}
