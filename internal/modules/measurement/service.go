package measurement

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/aristath/mpmeasure/internal/utils"
	"github.com/aristath/mpmeasure/internal/workers"
	"github.com/aristath/mpmeasure/pkg/tensor"
)

// bytesPerOutcome is the memory needed per joint outcome by direct sampling:
// the complex pmf and its real copy.
const bytesPerOutcome = 24

// Settings holds the default numerical knobs of the service.
type Settings struct {
	Eps            float64
	Method         Method
	NGroup         int
	PMPSImpl       PMPSImpl
	MemoryFraction float64
	Seed           uint64
}

// MemoryProbe returns the number of bytes currently available.
type MemoryProbe func() (uint64, error)

// SystemMemory reports available virtual memory.
func SystemMemory() (uint64, error) {
	vm, err := mem.VirtualMemory()
	if err != nil {
		return 0, err
	}
	return vm.Available, nil
}

// Service answers measurement requests on states described by specs.
type Service struct {
	catalog  *Catalog
	pool     *workers.WorkerPool
	settings Settings
	memory   MemoryProbe
	log      zerolog.Logger
}

// NewService creates a new measurement service
func NewService(catalog *Catalog, pool *workers.WorkerPool, settings Settings, memory MemoryProbe, log zerolog.Logger) *Service {
	if memory == nil {
		memory = SystemMemory
	}
	return &Service{
		catalog:  catalog,
		pool:     pool,
		settings: settings,
		memory:   memory,
		log:      log.With().Str("component", "measurement_service").Logger(),
	}
}

// Catalog returns the catalog used to build measurements.
func (s *Service) Catalog() *Catalog { return s.catalog }

// Settings returns the service defaults.
func (s *Service) Settings() Settings { return s.settings }

// PMFRequest asks for the exact pmf of a measurement on a state.
type PMFRequest struct {
	State StateSpec `json:"state"`
	POVM  POVMSpec  `json:"povm"`
	Eps   float64   `json:"eps,omitempty"`
}

// PMFMember is the pmf of one member of a measurement list.
type PMFMember struct {
	Shape []int     `json:"shape"`
	PMF   []float64 `json:"pmf"`
}

// SampleRequest asks for outcome samples.
type SampleRequest struct {
	State   StateSpec `json:"state"`
	POVM    POVMSpec  `json:"povm"`
	Samples int       `json:"samples"`
	Counts  []int     `json:"counts,omitempty"`
	Method  Method    `json:"method,omitempty"`
	NGroup  int       `json:"n_group,omitempty"`
	Seed    uint64    `json:"seed,omitempty"`
	Eps     float64   `json:"eps,omitempty"`
	Pack    bool      `json:"pack,omitempty"`
	Store   bool      `json:"store,omitempty"`
	Archive bool      `json:"archive,omitempty"`
}

// Outcomes holds samples per list member: Outcomes[member][sample][site].
// It encodes to JSON as nested integer arrays instead of base64 strings.
type Outcomes [][][]uint8

// MarshalJSON implements json.Marshaler.
func (o Outcomes) MarshalJSON() ([]byte, error) {
	if o == nil {
		return []byte("null"), nil
	}
	out := make([][][]int, len(o))
	for i, member := range o {
		out[i] = make([][]int, len(member))
		for j, sample := range member {
			row := make([]int, len(sample))
			for k, v := range sample {
				row[k] = int(v)
			}
			out[i][j] = row
		}
	}
	return json.Marshal(out)
}

// UnmarshalJSON implements json.Unmarshaler.
func (o *Outcomes) UnmarshalJSON(data []byte) error {
	var in [][][]int
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	if in == nil {
		*o = nil
		return nil
	}
	out := make(Outcomes, len(in))
	for i, member := range in {
		out[i] = make([][]uint8, len(member))
		for j, sample := range member {
			row := make([]uint8, len(sample))
			for k, v := range sample {
				if v < 0 || v > 255 {
					return fmt.Errorf("outcome %d out of range", v)
				}
				row[k] = uint8(v)
			}
			out[i][j] = row
		}
	}
	*o = out
	return nil
}

// SampleResult holds the drawn samples, one set per list member.
type SampleResult struct {
	Method    Method        `json:"method"`
	StateMode Mode          `json:"state_mode"`
	Dims      [][]int       `json:"dims"`
	Samples   Outcomes      `json:"samples,omitempty"`
	Packed    [][][]uint64  `json:"packed,omitempty"`
	List      *MPPovmList   `json:"-"`
	Elapsed   time.Duration `json:"elapsed_ns"`
}

// EstimateRequest asks for estimates of a target measurement's pmf, and
// optionally of a linear function of it, from samples of a source
// measurement.
type EstimateRequest struct {
	State   StateSpec   `json:"state"`
	Source  POVMSpec    `json:"source"`
	Target  POVMSpec    `json:"target"`
	Samples int         `json:"samples"`
	Coeff   [][]float64 `json:"coeff,omitempty"`
	Method  Method      `json:"method,omitempty"`
	NGroup  int         `json:"n_group,omitempty"`
	Seed    uint64      `json:"seed,omitempty"`
	Eps     float64     `json:"eps,omitempty"`
}

// EstimateMember is the estimated pmf of one target member.
type EstimateMember struct {
	Shape    []int        `json:"shape"`
	PMF      []tensor.Opt `json:"pmf"`
	Exact    []float64    `json:"exact"`
	NSamples []int        `json:"n_samples"`
}

// EstimateResult holds cross estimates.
type EstimateResult struct {
	Members []EstimateMember `json:"members"`
	Lfun    *OptEstimate     `json:"lfun,omitempty"`
	Exact   *OptEstimate     `json:"exact,omitempty"`
}

func (s *Service) eps(v float64) float64 {
	if v > 0 {
		return v
	}
	return s.settings.Eps
}

func (s *Service) rng(seed uint64) *rand.Rand {
	if seed == 0 {
		seed = s.settings.Seed
	}
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}

func (s *Service) buildState(spec StateSpec) (State, error) {
	if spec.Impl == "" {
		spec.Impl = s.settings.PMPSImpl
	}
	return spec.Build()
}

// directLimit returns the largest number of joint outcomes direct sampling
// may hold in memory.
func (s *Service) directLimit() int {
	avail, err := s.memory()
	if err != nil || s.settings.MemoryFraction <= 0 {
		if err != nil {
			s.log.Debug().Err(err).Msg("Memory probe failed, using static direct sampling limit")
		}
		return DirectOutcomeLimit
	}
	return int(float64(avail) * s.settings.MemoryFraction / bytesPerOutcome)
}

// PMF computes the exact pmf of every member of the requested measurement.
func (s *Service) PMF(ctx context.Context, req PMFRequest) ([]PMFMember, error) {
	state, err := s.buildState(req.State)
	if err != nil {
		return nil, err
	}
	list, err := req.POVM.Build(s.catalog, state.Hdims())
	if err != nil {
		return nil, err
	}
	eps := s.eps(req.Eps)
	done := utils.OperationTimer("pmf", s.log)

	pmfs, err := workers.Map(ctx, s.pool, list.Len(), func(_ context.Context, i int) (*tensor.Float, error) {
		return list.Member(i).PMFAsArray(state, eps)
	})
	if err != nil {
		s.log.Warn().Err(err).Str("povm", req.POVM.Name).Msg("PMF computation failed")
		return nil, err
	}
	out := make([]PMFMember, len(pmfs))
	for i, p := range pmfs {
		out[i] = PMFMember{Shape: p.Shape(), PMF: p.Data()}
	}
	done(zerolog.Dict().
		Str("povm", req.POVM.Name).
		Str("mode", string(state.Mode())).
		Int("members", len(out)))
	return out, nil
}

type samplingPlan struct {
	state  State
	list   *MPPovmList
	method Method
	nGroup int
	eps    float64
}

func (s *Service) plan(req SampleRequest) (*samplingPlan, error) {
	state, err := s.buildState(req.State)
	if err != nil {
		return nil, err
	}
	list, err := req.POVM.Build(s.catalog, state.Hdims())
	if err != nil {
		return nil, err
	}
	method, err := s.method(req.Method, list)
	if err != nil {
		return nil, err
	}
	nGroup := req.NGroup
	if nGroup <= 0 {
		nGroup = s.settings.NGroup
	}
	return &samplingPlan{state: state, list: list, method: method, nGroup: nGroup, eps: s.eps(req.Eps)}, nil
}

// Sample draws samples for every member of the requested measurement.
func (s *Service) Sample(ctx context.Context, req SampleRequest) (*SampleResult, error) {
	start := time.Now()
	plan, err := s.plan(req)
	if err != nil {
		return nil, err
	}
	list := plan.list
	counts := req.Counts
	if counts == nil {
		counts = make([]int, list.Len())
		for i := range counts {
			counts[i] = req.Samples
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	samples, err := list.SampleCounts(s.rng(req.Seed), plan.state, counts, plan.method, plan.nGroup, plan.eps)
	if err != nil {
		s.log.Warn().Err(err).Str("method", string(plan.method)).Msg("Sampling failed")
		return nil, err
	}
	res := &SampleResult{Method: plan.method, StateMode: plan.state.Mode(), List: list, Samples: samples}
	for _, p := range list.mpps {
		res.Dims = append(res.Dims, p.NsOutdims())
	}
	if req.Pack {
		packed, err := list.PackSamples(samples)
		if err != nil {
			return nil, err
		}
		res.Packed = packed
		res.Samples = nil
	}
	res.Elapsed = time.Since(start)

	s.log.Info().
		Str("povm", req.POVM.Name).
		Str("method", string(plan.method)).
		Int("members", list.Len()).
		Dur("elapsed", res.Elapsed).
		Msg("Drew samples")
	return res, nil
}

// SampleBatch is one chunk of a streamed sample run. Samples[i] holds the
// batch of member i.
type SampleBatch struct {
	Index   int      `json:"index"`
	Method  Method   `json:"method"`
	Samples Outcomes `json:"samples"`
}

// SampleStream draws req.Samples samples per member in batches of at most
// batch samples and hands every batch to emit. It stops at the first error
// from emit or when ctx is done.
func (s *Service) SampleStream(ctx context.Context, req SampleRequest, batch int, emit func(SampleBatch) error) error {
	if batch <= 0 {
		return dimErr("batch size must be positive, got %d", batch)
	}
	plan, err := s.plan(req)
	if err != nil {
		return err
	}
	done := utils.OperationTimer("sample_stream", s.log)
	defer func() { done(zerolog.Dict().Int("samples", req.Samples).Int("batch", batch)) }()

	rng := s.rng(req.Seed)
	for index, drawn := 0, 0; drawn < req.Samples; index++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		n := min(batch, req.Samples-drawn)
		samples, err := plan.list.Sample(rng, plan.state, n, plan.method, plan.nGroup, plan.eps)
		if err != nil {
			return err
		}
		if err := emit(SampleBatch{Index: index, Method: plan.method, Samples: samples}); err != nil {
			return err
		}
		drawn += n
	}
	return nil
}

// method resolves the sampling method for the largest member of list.
func (s *Service) method(requested Method, list *MPPovmList) (Method, error) {
	if requested == "" {
		requested = s.settings.Method
	}
	m, err := ParseMethod(string(requested))
	if err != nil {
		return "", err
	}
	if m != MethodAuto {
		return m, nil
	}
	limit := s.directLimit()
	for _, p := range list.mpps {
		if p.NumOutcomes() > limit {
			return MethodCond, nil
		}
	}
	return MethodDirect, nil
}

// Estimate samples the source measurement and estimates the target pmf and
// the requested linear function from those samples.
func (s *Service) Estimate(ctx context.Context, req EstimateRequest) (*EstimateResult, error) {
	state, err := s.buildState(req.State)
	if err != nil {
		return nil, err
	}
	source, err := req.Source.Build(s.catalog, state.Hdims())
	if err != nil {
		return nil, fmt.Errorf("source: %w", err)
	}
	target, err := req.Target.Build(s.catalog, state.Hdims())
	if err != nil {
		return nil, fmt.Errorf("target: %w", err)
	}
	method, err := s.method(req.Method, source)
	if err != nil {
		return nil, err
	}
	nGroup := req.NGroup
	if nGroup <= 0 {
		nGroup = s.settings.NGroup
	}
	eps := s.eps(req.Eps)

	samples, err := source.Sample(s.rng(req.Seed), state, req.Samples, method, nGroup, eps)
	if err != nil {
		return nil, err
	}
	cross, err := target.EstPMFFrom(source, samples, eps)
	if err != nil {
		return nil, err
	}
	exact, err := target.PMFAsArray(state, eps)
	if err != nil {
		return nil, err
	}
	res := &EstimateResult{Members: make([]EstimateMember, len(cross))}
	for i, c := range cross {
		res.Members[i] = EstimateMember{
			Shape:    c.PMF.Shape(),
			PMF:      c.PMF.Data(),
			Exact:    exact[i].Data(),
			NSamples: c.NSamples,
		}
	}

	if req.Coeff != nil {
		est, err := target.EstLfunFromContext(ctx, s.pool, source, req.Coeff, samples, eps)
		if err != nil {
			return nil, err
		}
		ex, err := target.LfunFrom(source, req.Coeff, state, nil, eps)
		if err != nil {
			return nil, err
		}
		res.Lfun, res.Exact = &est, &ex
		if !est.Value.Valid {
			s.log.Info().Msg("Linear function is not estimable from the source measurement")
		}
	}

	s.log.Info().
		Str("source", req.Source.Name).
		Str("target", req.Target.Name).
		Int("samples", req.Samples).
		Str("method", string(method)).
		Msg("Computed cross estimates")
	return res, nil
}
