// Package supersettest provides an in-process fake of the Superset REST API
// for tests.
package supersettest

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/Rrens/bi-genie/internal/superset"
)

const (
	AdminUser     = "admin"
	AdminPassword = "admin"
	AdminToken    = "admin-access-token"
	CSRFToken     = "csrf-token"
)

// ChartRecord is a chart created through the fake
type ChartRecord struct {
	Create     superset.ChartCreate
	Dashboards []int
	Owners     []int
}

// DashboardRecord is a dashboard created through the fake
type DashboardRecord struct {
	Create superset.DashboardCreate
	Owners []int
}

// Server is a fake Superset. Fields may be set before the first request.
type Server struct {
	*httptest.Server

	mu         sync.Mutex
	Users      map[string]superset.User
	Datasets   map[int]superset.DatasetDetail
	Visible    map[string][]int
	Charts     map[int]*ChartRecord
	Dashboards map[int]*DashboardRecord

	// FailChart lets a test reject specific chart creations with a 422
	FailChart func(superset.ChartCreate) string
	// DatasetListStatus forces the dataset listing to answer with this status
	DatasetListStatus int

	Logins         int
	ChartCreates   int
	DatasetDetails int
	nextID         int
}

// NewServer starts a fake Superset
func NewServer() *Server {
	s := &Server{
		Users:      map[string]superset.User{},
		Datasets:   map[int]superset.DatasetDetail{},
		Visible:    map[string][]int{},
		Charts:     map[int]*ChartRecord{},
		Dashboards: map[int]*DashboardRecord{},
		nextID:     100,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, _ *http.Request) { w.Write([]byte("OK")) })
	mux.HandleFunc("POST /api/v1/security/login", s.login)
	mux.HandleFunc("GET /api/v1/security/csrf_token/", s.admin(false, s.csrf))
	mux.HandleFunc("GET /api/v1/me/", s.me)
	mux.HandleFunc("GET /api/v1/dataset/", s.listDatasets)
	mux.HandleFunc("GET /api/v1/dataset/{id}", s.getDataset)
	mux.HandleFunc("POST /api/v1/chart/", s.admin(true, s.createChart))
	mux.HandleFunc("GET /api/v1/chart/{id}", s.admin(false, s.getChart))
	mux.HandleFunc("PUT /api/v1/chart/{id}", s.admin(true, s.updateChart))
	mux.HandleFunc("POST /api/v1/dashboard/", s.admin(true, s.createDashboard))
	mux.HandleFunc("PUT /api/v1/dashboard/{id}", s.admin(true, s.updateDashboard))
	mux.HandleFunc("GET /api/v1/dashboard/{id}/charts", s.admin(false, s.dashboardCharts))

	s.Server = httptest.NewServer(mux)
	return s
}

// Client returns a superset.Client pointed at the fake
func (s *Server) Client() *superset.Client {
	return superset.NewClient(superset.Options{
		BaseURL:       s.URL,
		ExternalURL:   "http://superset.example",
		AdminUser:     AdminUser,
		AdminPassword: AdminPassword,
	})
}

// AddUser registers a caller token with the datasets it may see
func (s *Server) AddUser(token string, user superset.User, datasetIDs ...int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Users[token] = user
	s.Visible[token] = datasetIDs
}

// AddDataset registers a dataset with its columns
func (s *Server) AddDataset(id int, name string, columns ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	detail := superset.DatasetDetail{ID: id, TableName: name}
	for _, c := range columns {
		detail.Columns = append(detail.Columns, superset.DatasetColumn{ColumnName: c, IsDttm: strings.Contains(c, "date")})
	}
	s.Datasets[id] = detail
}

// Chart returns a created chart
func (s *Server) Chart(id int) (ChartRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.Charts[id]
	if !ok {
		return ChartRecord{}, false
	}
	return *c, true
}

func (s *Server) admin(mutating bool, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer "+AdminToken {
			writeJSON(w, http.StatusUnauthorized, map[string]any{"msg": "Token has expired"})
			return
		}
		if mutating && r.Header.Get("X-CSRFToken") != CSRFToken {
			writeJSON(w, http.StatusBadRequest, map[string]any{"message": "The CSRF token is missing."})
			return
		}
		next(w, r)
	}
}

func (s *Server) login(w http.ResponseWriter, r *http.Request) {
	var body map[string]any
	json.NewDecoder(r.Body).Decode(&body)
	if body["username"] != AdminUser || body["password"] != AdminPassword || body["provider"] != "db" {
		writeJSON(w, http.StatusUnauthorized, map[string]any{"message": "Not authorized"})
		return
	}
	s.mu.Lock()
	s.Logins++
	s.mu.Unlock()
	http.SetCookie(w, &http.Cookie{Name: "session", Value: "admin-session", Path: "/"})
	writeJSON(w, http.StatusOK, map[string]any{"access_token": AdminToken, "refresh_token": "refresh"})
}

func (s *Server) csrf(w http.ResponseWriter, r *http.Request) {
	if _, err := r.Cookie("session"); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"message": "no session"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"result": CSRFToken})
}

func (s *Server) caller(r *http.Request) (string, bool) {
	token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	if token == AdminToken {
		return token, true
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.Users[token]
	return token, ok
}

func (s *Server) me(w http.ResponseWriter, r *http.Request) {
	if _, err := r.Cookie("session"); err == nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"message": "unexpected session cookie on caller request"})
		return
	}
	token, ok := s.caller(r)
	if !ok || token == AdminToken {
		writeJSON(w, http.StatusUnauthorized, map[string]any{"msg": "Not authorized"})
		return
	}
	s.mu.Lock()
	user := s.Users[token]
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]any{"result": user})
}

func (s *Server) listDatasets(w http.ResponseWriter, r *http.Request) {
	token, ok := s.caller(r)
	if !ok {
		writeJSON(w, http.StatusUnauthorized, map[string]any{"msg": "Not authorized"})
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.DatasetListStatus != 0 {
		writeJSON(w, s.DatasetListStatus, map[string]any{"message": "dataset listing failed"})
		return
	}

	var ids []int
	if token == AdminToken {
		for id := range s.Datasets {
			ids = append(ids, id)
		}
	} else {
		ids = append(ids, s.Visible[token]...)
	}
	sort.Ints(ids)

	result := make([]superset.DatasetSummary, 0, len(ids))
	for _, id := range ids {
		result = append(result, superset.DatasetSummary{ID: id, TableName: s.Datasets[id].TableName})
	}
	writeJSON(w, http.StatusOK, map[string]any{"count": len(result), "result": result})
}

func (s *Server) getDataset(w http.ResponseWriter, r *http.Request) {
	token, ok := s.caller(r)
	if !ok {
		writeJSON(w, http.StatusUnauthorized, map[string]any{"msg": "Not authorized"})
		return
	}
	id, _ := strconv.Atoi(r.PathValue("id"))

	s.mu.Lock()
	defer s.mu.Unlock()
	s.DatasetDetails++
	detail, exists := s.Datasets[id]
	if !exists || (token != AdminToken && !contains(s.Visible[token], id)) {
		writeJSON(w, http.StatusNotFound, map[string]any{"message": "Not found"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"result": detail})
}

func (s *Server) createChart(w http.ResponseWriter, r *http.Request) {
	var body superset.ChartCreate
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"message": err.Error()})
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.ChartCreates++
	if s.FailChart != nil {
		if msg := s.FailChart(body); msg != "" {
			writeJSON(w, http.StatusUnprocessableEntity, map[string]any{"message": map[string]any{"params": []string{msg}}})
			return
		}
	}
	s.nextID++
	id := s.nextID
	s.Charts[id] = &ChartRecord{Create: body, Owners: body.Owners}
	writeJSON(w, http.StatusCreated, map[string]any{"id": id, "result": body})
}

func (s *Server) getChart(w http.ResponseWriter, r *http.Request) {
	id, _ := strconv.Atoi(r.PathValue("id"))
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.Charts[id]
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]any{"message": "Not found"})
		return
	}
	dashboards := make([]map[string]int, 0, len(c.Dashboards))
	for _, d := range c.Dashboards {
		dashboards = append(dashboards, map[string]int{"id": d})
	}
	writeJSON(w, http.StatusOK, map[string]any{"result": map[string]any{
		"id":         id,
		"slice_name": c.Create.SliceName,
		"dashboards": dashboards,
	}})
}

func (s *Server) updateChart(w http.ResponseWriter, r *http.Request) {
	id, _ := strconv.Atoi(r.PathValue("id"))
	var body superset.ChartUpdate
	json.NewDecoder(r.Body).Decode(&body)

	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.Charts[id]
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]any{"message": "Not found"})
		return
	}
	if body.Owners != nil {
		c.Owners = body.Owners
	}
	if body.Dashboards != nil {
		c.Dashboards = body.Dashboards
	}
	writeJSON(w, http.StatusOK, map[string]any{"id": id, "result": body})
}

func (s *Server) createDashboard(w http.ResponseWriter, r *http.Request) {
	var body superset.DashboardCreate
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"message": err.Error()})
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	id := s.nextID
	s.Dashboards[id] = &DashboardRecord{Create: body, Owners: body.Owners}
	writeJSON(w, http.StatusCreated, map[string]any{"id": id, "result": body})
}

func (s *Server) updateDashboard(w http.ResponseWriter, r *http.Request) {
	id, _ := strconv.Atoi(r.PathValue("id"))
	var body superset.DashboardUpdate
	json.NewDecoder(r.Body).Decode(&body)

	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.Dashboards[id]
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]any{"message": "Not found"})
		return
	}
	d.Owners = body.Owners
	writeJSON(w, http.StatusOK, map[string]any{"id": id})
}

func (s *Server) dashboardCharts(w http.ResponseWriter, r *http.Request) {
	id, _ := strconv.Atoi(r.PathValue("id"))
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.Dashboards[id]; !ok {
		writeJSON(w, http.StatusNotFound, map[string]any{"message": "Not found"})
		return
	}
	var chartIDs []int
	for chartID, c := range s.Charts {
		if contains(c.Dashboards, id) {
			chartIDs = append(chartIDs, chartID)
		}
	}
	sort.Ints(chartIDs)
	result := make([]map[string]int, 0, len(chartIDs))
	for _, chartID := range chartIDs {
		result = append(result, map[string]int{"id": chartID})
	}
	writeJSON(w, http.StatusOK, map[string]any{"result": result})
}

// Dashboard returns a created dashboard
func (s *Server) Dashboard(id int) (DashboardRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.Dashboards[id]
	if !ok {
		return DashboardRecord{}, false
	}
	return *d, true
}

func contains(ids []int, id int) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
