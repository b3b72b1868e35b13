// Package httpapi exposes a read-only REST surface over the marketplace's
// ledgers, plus health and metrics endpoints.
package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/R3E-Network/course_marketplace/internal/coursetoken"
	"github.com/R3E-Network/course_marketplace/internal/factory"
	"github.com/R3E-Network/course_marketplace/internal/gt"
	"github.com/R3E-Network/course_marketplace/internal/marketplace"
	"github.com/R3E-Network/course_marketplace/internal/metrics"
	"github.com/R3E-Network/course_marketplace/internal/staking"
	"github.com/R3E-Network/course_marketplace/internal/talentmatch"
)

// Deps are the services the API reads from. Nil entries disable their
// endpoints with 404s.
type Deps struct {
	Ledger      gt.Ledger
	Factory     *factory.Service
	Marketplace *marketplace.Service
	TalentMatch *talentmatch.Service
	Staking     *staking.Service
}

type handler struct {
	deps Deps
}

// NewHandler returns a mux exposing the read-only REST API.
func NewHandler(deps Deps) http.Handler {
	h := &handler{deps: deps}
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", h.healthz)
	mux.Handle("/metrics", metrics.Handler())
	mux.HandleFunc("/collections", h.collections)
	mux.HandleFunc("/collections/", h.collectionResources)
	mux.HandleFunc("/listings", h.listings)
	mux.HandleFunc("/matches/", h.match)
	mux.HandleFunc("/scheme", h.scheme)
	mux.HandleFunc("/staking/", h.stakingResources)
	mux.HandleFunc("/accounts/", h.accountResources)
	return metrics.InstrumentHandler(mux)
}

func (h *handler) healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *handler) collections(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if h.deps.Factory == nil {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	out := make([]coursetoken.Collection, 0)
	for _, reg := range h.deps.Factory.Deployed() {
		c, err := reg.Collection(r.Context())
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		out = append(out, c)
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *handler) collectionResources(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	trimmed := strings.Trim(strings.TrimPrefix(r.URL.Path, "/collections"), "/")
	parts := strings.Split(trimmed, "/")
	if len(parts) == 0 || parts[0] == "" {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	reg := h.findCollection(r, parts[0])
	if reg == nil {
		writeError(w, http.StatusNotFound, errors.New("collection not found"))
		return
	}

	if len(parts) == 1 {
		c, err := reg.Collection(r.Context())
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		writeJSON(w, http.StatusOK, c)
		return
	}

	switch parts[1] {
	case "tokens":
		if len(parts) == 2 {
			c, err := reg.Collection(r.Context())
			if err != nil {
				writeError(w, http.StatusInternalServerError, err)
				return
			}
			tokens := make([]coursetoken.Token, 0, c.CurrentSupply)
			for i := uint64(0); i < c.CurrentSupply; i++ {
				token, err := reg.Token(r.Context(), c.TokenOrigin+i)
				if err != nil {
					continue
				}
				tokens = append(tokens, token)
			}
			writeJSON(w, http.StatusOK, tokens)
			return
		}
		tokenID, err := strconv.ParseUint(parts[2], 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		token, err := reg.Token(r.Context(), tokenID)
		if err != nil {
			writeError(w, http.StatusNotFound, err)
			return
		}
		writeJSON(w, http.StatusOK, token)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (h *handler) listings(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if h.deps.Marketplace == nil {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	listings, err := h.deps.Marketplace.Listings(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if listings == nil {
		listings = []marketplace.Listing{}
	}
	writeJSON(w, http.StatusOK, listings)
}

func (h *handler) match(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if h.deps.TalentMatch == nil {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	key := strings.Trim(strings.TrimPrefix(r.URL.Path, "/matches"), "/")
	if key == "" {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	m, err := h.deps.TalentMatch.Match(r.Context(), key)
	if err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

func (h *handler) scheme(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if h.deps.TalentMatch == nil {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	scheme, err := h.deps.TalentMatch.Scheme(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, scheme)
}

// stakingResources serves /staking/tiers/{tier}/users and
// /staking/tiers/{tier}/total.
func (h *handler) stakingResources(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if h.deps.Staking == nil {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	trimmed := strings.Trim(strings.TrimPrefix(r.URL.Path, "/staking"), "/")
	parts := strings.Split(trimmed, "/")
	if len(parts) != 3 || parts[0] != "tiers" {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	tier, err := strconv.ParseUint(parts[1], 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	switch parts[2] {
	case "users":
		writeJSON(w, http.StatusOK, h.deps.Staking.GetAllUser(tier))
	case "total":
		total, err := h.deps.Staking.TotalDeposits(r.Context(), tier)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"total": total.Dec()})
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

// accountResources serves /accounts/{account}/balance.
func (h *handler) accountResources(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if h.deps.Ledger == nil {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	trimmed := strings.Trim(strings.TrimPrefix(r.URL.Path, "/accounts"), "/")
	parts := strings.Split(trimmed, "/")
	if len(parts) != 2 || parts[1] != "balance" {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"account": parts[0],
		"balance": h.deps.Ledger.BalanceOf(parts[0]).Dec(),
	})
}

func (h *handler) findCollection(r *http.Request, id string) *coursetoken.Registry {
	if h.deps.Factory == nil {
		return nil
	}
	for _, reg := range h.deps.Factory.Deployed() {
		c, err := reg.Collection(r.Context())
		if err == nil && c.ID == id {
			return reg
		}
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
}
