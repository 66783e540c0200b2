package service

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/FlexMeasures/flexmeasures/internal/domain"
	"github.com/FlexMeasures/flexmeasures/internal/store"
)

type mockAccountStore struct {
	accounts map[int64]*domain.Account
	nextID   int64
}

func newMockAccountStore() *mockAccountStore {
	return &mockAccountStore{accounts: make(map[int64]*domain.Account)}
}

func (m *mockAccountStore) Create(ctx context.Context, a *domain.Account) error {
	for _, existing := range m.accounts {
		if existing.Name == a.Name {
			return store.ErrConflict
		}
	}
	m.nextID++
	a.ID = m.nextID
	a.CreatedAt = time.Now()
	m.accounts[a.ID] = a
	return nil
}

func (m *mockAccountStore) GetByID(ctx context.Context, id int64) (*domain.Account, error) {
	a, ok := m.accounts[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return a, nil
}

func (m *mockAccountStore) GetByName(ctx context.Context, name string) (*domain.Account, error) {
	for _, a := range m.accounts {
		if a.Name == name {
			return a, nil
		}
	}
	return nil, store.ErrNotFound
}

type mockUserStore struct {
	users  map[int64]*domain.User
	nextID int64
}

func newMockUserStore() *mockUserStore {
	return &mockUserStore{users: make(map[int64]*domain.User)}
}

func (m *mockUserStore) Create(ctx context.Context, u *domain.User) error {
	for _, existing := range m.users {
		if existing.Email == u.Email {
			return store.ErrConflict
		}
	}
	m.nextID++
	u.ID = m.nextID
	m.users[u.ID] = u
	return nil
}

func (m *mockUserStore) GetByID(ctx context.Context, id int64) (*domain.User, error) {
	u, ok := m.users[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return u, nil
}

func (m *mockUserStore) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	for _, u := range m.users {
		if u.Email == email {
			return u, nil
		}
	}
	return nil, store.ErrNotFound
}

func (m *mockUserStore) UpdateLastLogin(ctx context.Context, id int64, at time.Time) error {
	u, ok := m.users[id]
	if !ok {
		return store.ErrNotFound
	}
	u.LastLoginAt = &at
	return nil
}

type mockSensorStore struct {
	sensors map[int64]*domain.Sensor
	nextID  int64
}

func newMockSensorStore(sensors ...*domain.Sensor) *mockSensorStore {
	m := &mockSensorStore{sensors: make(map[int64]*domain.Sensor)}
	for _, s := range sensors {
		m.sensors[s.ID] = s
		if s.ID > m.nextID {
			m.nextID = s.ID
		}
	}
	return m
}

func (m *mockSensorStore) Create(ctx context.Context, s *domain.Sensor) error {
	m.nextID++
	s.ID = m.nextID
	m.sensors[s.ID] = s
	return nil
}

func (m *mockSensorStore) GetByID(ctx context.Context, id int64) (*domain.Sensor, error) {
	s, ok := m.sensors[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return s, nil
}

type mockSourceStore struct {
	sources []domain.DataSource
}

func (m *mockSourceStore) GetOrCreate(ctx context.Context, ds *domain.DataSource) error {
	for _, s := range m.sources {
		if s.Name == ds.Name && s.Type == ds.Type && s.Model == ds.Model && s.Version == ds.Version && sameUser(s.UserID, ds.UserID) {
			ds.ID = s.ID
			return nil
		}
	}
	ds.ID = int64(len(m.sources) + 1)
	m.sources = append(m.sources, *ds)
	return nil
}

func sameUser(a, b *int64) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func (m *mockSourceStore) GetByID(ctx context.Context, id int64) (*domain.DataSource, error) {
	for _, s := range m.sources {
		if s.ID == id {
			s := s
			return &s, nil
		}
	}
	return nil, store.ErrNotFound
}

func (m *mockSourceStore) ListBySensor(ctx context.Context, sensorID int64) ([]domain.DataSource, error) {
	return m.sources, nil
}

// mockBeliefStore filters like the database does: by sensor, event window,
// sources and horizons.
type mockBeliefStore struct {
	mu      sync.Mutex
	sensors *mockSensorStore
	beliefs []domain.Belief
}

func newMockBeliefStore(sensors *mockSensorStore) *mockBeliefStore {
	return &mockBeliefStore{sensors: sensors}
}

func (m *mockBeliefStore) Save(ctx context.Context, beliefs []domain.Belief) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, b := range beliefs {
		if b.CumulativeProbability == 0 {
			b.CumulativeProbability = domain.DefaultCumulativeProbability
		}
		dup := false
		for _, have := range m.beliefs {
			if have.SensorID == b.SensorID && have.EventStart.Equal(b.EventStart) &&
				have.BeliefHorizon == b.BeliefHorizon && have.SourceID == b.SourceID {
				dup = true
				break
			}
		}
		if !dup {
			m.beliefs = append(m.beliefs, b)
			n++
		}
	}
	return n, nil
}

func (m *mockBeliefStore) Search(ctx context.Context, q domain.BeliefSearch) ([]domain.Belief, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sensor, err := m.sensors.GetByID(ctx, q.SensorID)
	if err != nil {
		return nil, err
	}
	var out []domain.Belief
	for _, b := range m.beliefs {
		switch {
		case b.SensorID != q.SensorID:
		case !q.EventStartsAfter.IsZero() && b.EventStart.Before(q.EventStartsAfter):
		case !q.EventEndsBefore.IsZero() && b.EventStart.Add(sensor.EventResolution).After(q.EventEndsBefore):
		case len(q.SourceIDs) > 0 && !containsID(q.SourceIDs, b.SourceID):
		case q.HorizonsAtLeast != nil && b.BeliefHorizon < *q.HorizonsAtLeast:
		case q.HorizonsAtMost != nil && b.BeliefHorizon > *q.HorizonsAtMost:
		default:
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].EventStart.Before(out[j].EventStart) })
	return out, nil
}

func (m *mockBeliefStore) bySource(sourceID int64) []domain.Belief {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Belief
	for _, b := range m.beliefs {
		if b.SourceID == sourceID {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].EventStart.Before(out[j].EventStart) })
	return out
}

func containsID(ids []int64, id int64) bool {
	for _, have := range ids {
		if have == id {
			return true
		}
	}
	return false
}

type mockAssetStore struct {
	assets map[int64]*domain.Asset
	types  map[string]*domain.AssetType
	nextID int64
}

func newMockAssetStore() *mockAssetStore {
	return &mockAssetStore{assets: make(map[int64]*domain.Asset), types: make(map[string]*domain.AssetType)}
}

func (m *mockAssetStore) Create(ctx context.Context, a *domain.Asset) error {
	m.nextID++
	a.ID = m.nextID
	m.assets[a.ID] = a
	return nil
}

func (m *mockAssetStore) GetByID(ctx context.Context, id int64) (*domain.Asset, error) {
	a, ok := m.assets[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return a, nil
}

func (m *mockAssetStore) ListByOwner(ctx context.Context, ownerID int64) ([]domain.Asset, error) {
	var out []domain.Asset
	for id := int64(1); id <= m.nextID; id++ {
		if a, ok := m.assets[id]; ok && a.OwnerID == ownerID {
			out = append(out, *a)
		}
	}
	return out, nil
}

func (m *mockAssetStore) CreateType(ctx context.Context, t *domain.AssetType) error {
	if _, ok := m.types[t.Name]; ok {
		return store.ErrConflict
	}
	m.types[t.Name] = t
	return nil
}

func (m *mockAssetStore) GetType(ctx context.Context, name string) (*domain.AssetType, error) {
	t, ok := m.types[name]
	if !ok {
		return nil, store.ErrNotFound
	}
	return t, nil
}

type mockAnnotationStore struct {
	annotations []*domain.Annotation
}

func (m *mockAnnotationStore) Create(ctx context.Context, a *domain.Annotation) error {
	a.ID = int64(len(m.annotations) + 1)
	m.annotations = append(m.annotations, a)
	return nil
}

func (m *mockAnnotationStore) ListByAccount(ctx context.Context, accountID int64, start, end time.Time) ([]domain.Annotation, error) {
	var out []domain.Annotation
	for _, a := range m.annotations {
		if containsID(a.AccountIDs, accountID) && a.Start.Before(end) && a.End.After(start) {
			out = append(out, *a)
		}
	}
	return out, nil
}

type mockJobStore struct {
	mu     sync.Mutex
	jobs   []domain.ForecastingJob
	failed map[int64]string
}

func newMockJobStore() *mockJobStore {
	return &mockJobStore{failed: make(map[int64]string)}
}

func (m *mockJobStore) Create(ctx context.Context, jobs []domain.ForecastingJob) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range jobs {
		jobs[i].ID = int64(len(m.jobs) + 1)
		if jobs[i].Status == "" {
			jobs[i].Status = domain.JobPending
		}
		m.jobs = append(m.jobs, jobs[i])
	}
	return nil
}

func (m *mockJobStore) ClaimPending(ctx context.Context, limit int) ([]domain.ForecastingJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var claimed []domain.ForecastingJob
	for i := range m.jobs {
		if len(claimed) == limit {
			break
		}
		if m.jobs[i].Status == domain.JobPending {
			m.jobs[i].Status = domain.JobInProgress
			claimed = append(claimed, m.jobs[i])
		}
	}
	return claimed, nil
}

func (m *mockJobStore) MarkFinished(ctx context.Context, id int64) error {
	return m.set(id, domain.JobFinished, "")
}

func (m *mockJobStore) MarkFailed(ctx context.Context, id int64, reason string) error {
	return m.set(id, domain.JobFailed, reason)
}

func (m *mockJobStore) set(id int64, status domain.ForecastingJobStatus, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.jobs {
		if m.jobs[i].ID == id {
			m.jobs[i].Status = status
			m.jobs[i].Error = reason
			return nil
		}
	}
	return store.ErrNotFound
}

func (m *mockJobStore) ListBySensor(ctx context.Context, sensorID int64) ([]domain.ForecastingJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.ForecastingJob
	for _, j := range m.jobs {
		if j.SensorID == sensorID {
			out = append(out, j)
		}
	}
	return out, nil
}

type mockProfileStore struct {
	mu       sync.Mutex
	profiles map[string]*domain.DailyProfile
}

func newMockProfileStore() *mockProfileStore {
	return &mockProfileStore{profiles: make(map[string]*domain.DailyProfile)}
}

func profileKey(sensorID int64, d time.Time) string {
	return fmt.Sprintf("%d/%s", sensorID, d.UTC().Format(time.DateOnly))
}

func (m *mockProfileStore) Upsert(ctx context.Context, p *domain.DailyProfile) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *p
	m.profiles[profileKey(p.SensorID, p.Day)] = &cp
	return nil
}

func (m *mockProfileStore) Get(ctx context.Context, sensorID int64, d time.Time) (*domain.DailyProfile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.profiles[profileKey(sensorID, d)]
	if !ok {
		return nil, store.ErrNotFound
	}
	return p, nil
}

func (m *mockProfileStore) FindSimilar(ctx context.Context, sensorID int64, values []float32, before time.Time, limit int) ([]domain.DailyProfileWithDistance, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.DailyProfileWithDistance
	for _, p := range m.profiles {
		if p.SensorID != sensorID || !p.Day.Before(before) || len(p.Values) != len(values) {
			continue
		}
		out = append(out, domain.DailyProfileWithDistance{DailyProfile: *p, Distance: cosineDistance(p.Values, values)})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Distance != out[j].Distance {
			return out[i].Distance < out[j].Distance
		}
		return out[i].Day.After(out[j].Day)
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func cosineDistance(a, b []float32) float32 {
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 1
	}
	return float32(1 - dot/(math.Sqrt(na)*math.Sqrt(nb)))
}

type recordingPublisher struct {
	events []domain.SensorDataEvent
	err    error
}

func (p *recordingPublisher) PublishSensorData(ctx context.Context, e domain.SensorDataEvent) error {
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, e)
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

type memorySink struct {
	files map[string][]byte
}

func (s *memorySink) Write(ctx context.Context, name string, data []byte) error {
	if s.files == nil {
		s.files = make(map[string][]byte)
	}
	s.files[name] = append([]byte(nil), data...)
	return nil
}

type mockWeatherStore struct {
	sensors []domain.WeatherSensor
}

func (m *mockWeatherStore) Create(ctx context.Context, ws *domain.WeatherSensor) error {
	for _, e := range m.sensors {
		if e.Name == ws.Name {
			return store.ErrConflict
		}
	}
	ws.ID = int64(len(m.sensors) + 1)
	m.sensors = append(m.sensors, *ws)
	return nil
}

func (m *mockWeatherStore) ListByType(ctx context.Context, typeName string) ([]domain.WeatherSensor, error) {
	var out []domain.WeatherSensor
	for _, ws := range m.sensors {
		if ws.WeatherSensorTypeName == typeName {
			out = append(out, ws)
		}
	}
	return out, nil
}

type mockMarketStore map[int64]*domain.Market

func (m mockMarketStore) GetByID(ctx context.Context, id int64) (*domain.Market, error) {
	if mk, ok := m[id]; ok {
		return mk, nil
	}
	return nil, store.ErrNotFound
}

func (m mockMarketStore) GetByName(ctx context.Context, name string) (*domain.Market, error) {
	for _, mk := range m {
		if mk.Name == name {
			return mk, nil
		}
	}
	return nil, store.ErrNotFound
}
