package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/FlexMeasures/flexmeasures/internal/api/middleware"
	"github.com/FlexMeasures/flexmeasures/internal/domain"
	"github.com/FlexMeasures/flexmeasures/internal/schemas"
	"github.com/FlexMeasures/flexmeasures/internal/service"
	"github.com/FlexMeasures/flexmeasures/internal/timeseries"
)

// Service describes one USEF service and the roles that may use it.
type Service struct {
	Name        string        `json:"name"`
	Access      []domain.Role `json:"access"`
	Description string        `json:"description"`
}

// ServiceListing is what an API version offers.
type ServiceListing struct {
	Version  string    `json:"version"`
	Services []Service `json:"services"`
}

var usefRoles = []domain.Role{
	domain.RoleAggregator, domain.RoleSupplier, domain.RoleMDC,
	domain.RoleDSO, domain.RoleProsumer, domain.RoleESCo,
}

var (
	getMeterDataService  = Service{Name: "getMeterData", Access: usefRoles, Description: "Request meter reading"}
	postMeterDataService = Service{Name: "postMeterData", Access: []domain.Role{domain.RoleMDC}, Description: "Send meter reading"}
	getPrognosisService  = Service{Name: "getPrognosis", Access: usefRoles, Description: "Request load planning"}
	postPrognosisService = Service{Name: "postPrognosis", Access: usefRoles, Description: "Send prediction"}

	// Listed for USEF clients, but not routed: requests for them get a 404.
	postUdiEventService = Service{
		Name:   "postUdiEvent",
		Access: []domain.Role{domain.RoleProsumer, domain.RoleESCo},
		Description: "Send a description of some flexible consumption or production process as a USEF Device " +
			"Interface (UDI) event, including device capabilities (control constraints)",
	}
	getDeviceMessageService = Service{
		Name:   "getDeviceMessage",
		Access: []domain.Role{domain.RoleProsumer, domain.RoleESCo},
		Description: "Get an Active Demand & Supply (ADS) request for a certain type of control action, " +
			"including control set points",
	}

	v1_1Services = []Service{
		getMeterDataService, postMeterDataService, getPrognosisService, postPrognosisService,
		postUdiEventService, getDeviceMessageService,
	}
)

// Listings holds the service listing of each API version. Later versions
// inherit the services of v1_1. The UDI services are listed as USEF clients
// expect, though only meter data and prognoses are served.
var Listings = map[string]ServiceListing{
	"v1": {
		Version:  "1.0",
		Services: []Service{getMeterDataService, postMeterDataService},
	},
	"v1_1": {
		Version:  "1.1",
		Services: v1_1Services,
	},
	"v1_2": {
		Version:  "1.2",
		Services: v1_1Services,
	},
	"v1_3": {
		Version:  "1.3",
		Services: v1_1Services,
	},
}

// Access returns the roles that may use the named service, or nil when the
// listing does not offer it.
func (l ServiceListing) Access(name string) []domain.Role {
	for _, s := range l.Services {
		if s.Name == name {
			return s.Access
		}
	}
	return nil
}

func (l ServiceListing) Offers(name string) bool {
	return l.Access(name) != nil
}

// filter keeps the services accessible to role.
func (l ServiceListing) filter(role string) []Service {
	if role == "" {
		return l.Services
	}
	out := []Service{}
	for _, s := range l.Services {
		for _, a := range s.Access {
			if string(a) == role {
				out = append(out, s)
				break
			}
		}
	}
	return out
}

// PowerExchanger stores and retrieves power data about connections.
type PowerExchanger interface {
	Post(ctx context.Context, p service.PowerPost) (*service.PostResult, error)
	Get(ctx context.Context, q service.PowerQuery) (*service.PowerData, error)
}

// USEFHandler serves the USEF messages of one API version.
type USEFHandler struct {
	listing ServiceListing
	power   PowerExchanger
}

func NewUSEFHandler(listing ServiceListing, power PowerExchanger) *USEFHandler {
	return &USEFHandler{listing: listing, power: power}
}

type serviceResponse struct {
	Type     string    `json:"type"`
	Version  string    `json:"version"`
	Services []Service `json:"services"`
	Status   string    `json:"status"`
	Message  string    `json:"message"`
}

// GetService lists the services of this version, optionally only those a
// role can access.
func (h *USEFHandler) GetService(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, serviceResponse{
		Type:     "GetServiceResponse",
		Version:  h.listing.Version,
		Services: h.listing.filter(r.URL.Query().Get("access")),
		Status:   StatusProcessed,
		Message:  msgProcessed,
	})
}

func (h *USEFHandler) GetMeterData(w http.ResponseWriter, r *http.Request) {
	h.get(w, r, service.MeterData, "GetMeterDataRequest")
}

func (h *USEFHandler) PostMeterData(w http.ResponseWriter, r *http.Request) {
	h.post(w, r, service.MeterData, "PostMeterDataRequest")
}

func (h *USEFHandler) GetPrognosis(w http.ResponseWriter, r *http.Request) {
	h.get(w, r, service.Prognosis, "GetPrognosisRequest")
}

func (h *USEFHandler) PostPrognosis(w http.ResponseWriter, r *http.Request) {
	h.post(w, r, service.Prognosis, "PostPrognosisRequest")
}

type responseGroup struct {
	Connection  string                   `json:"connection,omitempty"`
	Connections []string                 `json:"connections,omitempty"`
	Values      schemas.SingleValueField `json:"values"`
}

type dataResponse struct {
	Type        string                   `json:"type"`
	Connection  string                   `json:"connection,omitempty"`
	Connections []string                 `json:"connections,omitempty"`
	Values      schemas.SingleValueField `json:"values,omitempty"`
	Groups      []responseGroup          `json:"groups,omitempty"`
	Start       string                   `json:"start"`
	Duration    string                   `json:"duration"`
	Unit        string                   `json:"unit"`
	Resolution  string                   `json:"resolution,omitempty"`
}

func (h *USEFHandler) get(w http.ResponseWriter, r *http.Request, kind service.DataKind, requestType string) {
	m, uerr := readMessage(r)
	if uerr == nil {
		uerr = m.checkType(requestType)
	}
	if uerr == nil {
		uerr = m.checkUnit()
	}
	if uerr != nil {
		writeUSEF(w, r, uerr.code, uerr.status, uerr.msg)
		return
	}

	q := service.PowerQuery{Kind: kind, SourceIDs: m.Source, User: middleware.UserFromContext(r.Context())}
	q.Groups, uerr = m.queryGroups()
	if uerr == nil {
		q.Start, q.Duration, uerr = m.period()
	}
	if uerr == nil {
		q.Horizon, _, uerr = m.horizon()
	}
	if uerr == nil {
		q.Resolution, uerr = m.resolution()
	}
	if uerr != nil {
		writeUSEF(w, r, uerr.code, uerr.status, uerr.msg)
		return
	}

	data, err := h.power.Get(r.Context(), q)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	resp := dataResponse{
		Type:       middleware.ResponseTypeFromContext(r.Context()),
		Start:      q.Start.UTC().Format(time.RFC3339),
		Duration:   timeseries.FormatDuration(q.Duration),
		Unit:       powerUnit,
		Resolution: timeseries.FormatDuration(data.Resolution),
	}
	if len(data.Groups) == 1 {
		g := data.Groups[0]
		resp.Connection, resp.Connections = connectionFields(g.Connections)
		resp.Values = schemas.ValuesOf(g.Values...)
	} else {
		for _, g := range data.Groups {
			rg := responseGroup{Values: schemas.ValuesOf(g.Values...)}
			rg.Connection, rg.Connections = connectionFields(g.Connections)
			resp.Groups = append(resp.Groups, rg)
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func connectionFields(cs []string) (string, []string) {
	if len(cs) == 1 {
		return cs[0], nil
	}
	return "", cs
}

func (h *USEFHandler) post(w http.ResponseWriter, r *http.Request, kind service.DataKind, requestType string) {
	m, uerr := readMessage(r)
	if uerr == nil {
		uerr = m.checkType(requestType)
	}
	if uerr == nil {
		uerr = m.checkUnit()
	}
	if uerr != nil {
		writeUSEF(w, r, uerr.code, uerr.status, uerr.msg)
		return
	}

	p := service.PowerPost{Kind: kind, User: middleware.UserFromContext(r.Context())}
	p.Groups, uerr = m.postGroups()
	if uerr == nil {
		p.Start, p.Duration, uerr = m.period()
	}
	if uerr == nil {
		p.Horizon, p.Rolling, uerr = m.horizon()
	}
	if uerr != nil {
		writeUSEF(w, r, uerr.code, uerr.status, uerr.msg)
		return
	}

	if _, err := h.power.Post(r.Context(), p); err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeProcessed(w, r)
}
