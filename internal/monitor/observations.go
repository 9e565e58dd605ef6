package monitor

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/banshee-data/slr.track/internal/httputil"
	"github.com/banshee-data/slr.track/internal/observation"
	"github.com/banshee-data/slr.track/internal/security"
)

// setResponse is a set as listed by the API.
type setResponse struct {
	observation.Set
	PointCount int `json:"point_count"`
}

func newSetResponse(s observation.Set) setResponse {
	return setResponse{Set: s, PointCount: len(s.Points)}
}

// Point is the JSON form of one scene position.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// PointsResponse is the body of /api/observations/points.
type PointsResponse struct {
	ID     string  `json:"id"`
	Label  string  `json:"label"`
	Color  string  `json:"color"`
	Points []Point `json:"points"`
}

// handleObservations lists (GET), uploads (POST ?label=), updates
// (PATCH ?id=&visible=&color=) and removes (DELETE ?id=) observation sets.
func (s *Server) handleObservations(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		sets := s.registry.Sets()
		out := make([]setResponse, len(sets))
		for i, set := range sets {
			out[i] = newSetResponse(set)
		}
		httputil.WriteJSONOK(w, out)

	case http.MethodPost:
		points, format, err := observation.ParseFile(r.Body)
		if err != nil {
			httputil.BadRequest(w, "%v", err)
			return
		}
		label := r.URL.Query().Get("label")
		if label != "" {
			label = security.SanitizeLabel(label)
		}
		set, err := s.registry.Add(label, points)
		if err != nil {
			s.writeRegistryError(w, err)
			return
		}
		s.logf("uploaded %s set %q with %d points", format, set.Label, len(points))
		httputil.Created(w, newSetResponse(set))

	case http.MethodPatch:
		id, ok := httputil.RequireQuery(w, r, "id")
		if !ok {
			return
		}
		q := r.URL.Query()
		if !q.Has("visible") && !q.Has("color") {
			httputil.BadRequest(w, "nothing to update, expected 'visible' or 'color'")
			return
		}
		if q.Has("visible") {
			visible, err := strconv.ParseBool(q.Get("visible"))
			if err != nil {
				httputil.BadRequest(w, "invalid 'visible' parameter: %q", q.Get("visible"))
				return
			}
			if err := s.registry.SetVisible(id, visible); err != nil {
				s.writeRegistryError(w, err)
				return
			}
		}
		if q.Has("color") {
			if err := s.registry.SetColor(id, q.Get("color")); err != nil {
				s.writeRegistryError(w, err)
				return
			}
		}
		set, err := s.registry.Get(id)
		if err != nil {
			s.writeRegistryError(w, err)
			return
		}
		httputil.WriteJSONOK(w, newSetResponse(set))

	case http.MethodDelete:
		id, ok := httputil.RequireQuery(w, r, "id")
		if !ok {
			return
		}
		if err := s.registry.Remove(id); err != nil {
			s.writeRegistryError(w, err)
			return
		}
		httputil.WriteJSONOK(w, map[string]string{"deleted": id})

	default:
		httputil.MethodNotAllowed(w, http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodDelete)
	}
}

// handleObservationClear empties a set's points (POST ?id=).
func (s *Server) handleObservationClear(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w, http.MethodPost)
		return
	}
	id, ok := httputil.RequireQuery(w, r, "id")
	if !ok {
		return
	}
	if err := s.registry.Clear(id); err != nil {
		s.writeRegistryError(w, err)
		return
	}
	set, err := s.registry.Get(id)
	if err != nil {
		s.writeRegistryError(w, err)
		return
	}
	httputil.WriteJSONOK(w, newSetResponse(set))
}

// handleObservationPoints returns the raw points of one set (GET ?id=).
func (s *Server) handleObservationPoints(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w, http.MethodGet)
		return
	}
	id, ok := httputil.RequireQuery(w, r, "id")
	if !ok {
		return
	}
	set, err := s.registry.Get(id)
	if err != nil {
		s.writeRegistryError(w, err)
		return
	}
	resp := PointsResponse{ID: set.ID, Label: set.Label, Color: set.Color, Points: make([]Point, len(set.Points))}
	for i, p := range set.Points {
		resp.Points[i] = Point{X: p.X, Y: p.Y, Z: p.Z}
	}
	httputil.WriteJSONOK(w, resp)
}

func (s *Server) writeRegistryError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, observation.ErrSetNotFound):
		httputil.NotFound(w, "%v", err)
	case errors.Is(err, observation.ErrInvalidColor), errors.Is(err, observation.ErrNoPoints):
		httputil.BadRequest(w, "%v", err)
	default:
		httputil.InternalServerError(w, err)
	}
}
