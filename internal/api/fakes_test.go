package api

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/FlexMeasures/flexmeasures/internal/domain"
	"github.com/FlexMeasures/flexmeasures/internal/schemas"
	"github.com/FlexMeasures/flexmeasures/internal/service"
	"github.com/FlexMeasures/flexmeasures/internal/timeseries"
)

type fakeAuth struct {
	tokens    map[string]*domain.User
	passwords map[string]string
	err       error
}

func (a *fakeAuth) Authenticate(ctx context.Context, token string) (*domain.User, error) {
	if u, ok := a.tokens[token]; ok {
		return u, nil
	}
	return nil, service.ErrInvalidToken
}

func (a *fakeAuth) Lookup(ctx context.Context, email string) (*domain.User, error) {
	if a.err != nil {
		return nil, a.err
	}
	for _, u := range a.tokens {
		if u.Email == email {
			return u, nil
		}
	}
	return nil, service.ErrUserNotFound
}

func (a *fakeAuth) Login(ctx context.Context, email, password string) (string, *domain.User, error) {
	u, err := a.Lookup(ctx, email)
	if err != nil {
		return "", nil, err
	}
	if a.passwords[email] != password {
		return "", nil, service.ErrPasswordMismatch
	}
	for token, tu := range a.tokens {
		if tu == u {
			return token, u, nil
		}
	}
	return "", nil, errors.New("no token")
}

// fakePower remembers posted values per connection and sums them on retrieval.
type fakePower struct {
	values  map[string][]float64
	posts   []service.PowerPost
	queries []service.PowerQuery
	err     error
}

func (p *fakePower) Post(ctx context.Context, post service.PowerPost) (*service.PostResult, error) {
	if p.err != nil {
		return nil, p.err
	}
	p.posts = append(p.posts, post)
	if p.values == nil {
		p.values = make(map[string][]float64)
	}
	for _, g := range post.Groups {
		for _, c := range g.Connections {
			p.values[c] = g.Values
		}
	}
	return &service.PostResult{Saved: int64(len(post.Groups))}, nil
}

func (p *fakePower) Get(ctx context.Context, q service.PowerQuery) (*service.PowerData, error) {
	if p.err != nil {
		return nil, p.err
	}
	p.queries = append(p.queries, q)
	res := q.Resolution
	if res == 0 {
		res = 15 * time.Minute
	}
	n := int(q.Duration / res)

	out := &service.PowerData{Resolution: res}
	for _, g := range q.Groups {
		sum := make([]float64, n)
		for i := range sum {
			sum[i] = math.NaN()
		}
		for _, c := range g.Connections {
			for i, v := range p.values[c] {
				if i >= n {
					break
				}
				if math.IsNaN(sum[i]) {
					sum[i] = 0
				}
				sum[i] += v
			}
		}
		out.Groups = append(out.Groups, service.ConnectionGroup{Connections: g.Connections, Values: sum})
	}
	return out, nil
}

type fakeSensors struct {
	status *timeseries.Status
	frame  *timeseries.Frame
	err    error

	gotSpec   *schemas.StatusSpec
	gotNow    time.Time
	gotSearch domain.BeliefSearch
}

func (s *fakeSensors) Status(ctx context.Context, id int64, spec *schemas.StatusSpec, now time.Time) (*timeseries.Status, error) {
	s.gotSpec, s.gotNow = spec, now
	if s.err != nil {
		return nil, s.err
	}
	return s.status, nil
}

func (s *fakeSensors) Data(ctx context.Context, q domain.BeliefSearch) (*timeseries.Frame, error) {
	s.gotSearch = q
	if s.err != nil {
		return nil, s.err
	}
	return s.frame, nil
}

type fakeWeather struct {
	sensor *domain.WeatherSensor
}

func (w *fakeWeather) Closest(ctx context.Context, typeName string, lat, lng float64) (*domain.WeatherSensor, float64, error) {
	if w.sensor == nil || w.sensor.WeatherSensorTypeName != typeName {
		return nil, 0, service.ErrNoWeatherSensor
	}
	return w.sensor, w.sensor.GreatCircleDistance(lat, lng), nil
}
