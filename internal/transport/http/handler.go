// Package httptransport is the thin HTTP layer over the credential core.
// Handlers decode, delegate to domain services, and encode; business rules
// live below this package.
package httptransport

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"attest/internal/audit"
	"attest/internal/issuance"
	"attest/internal/ledger"
	"attest/internal/revocation"
	"attest/internal/sharing"
	transportjson "attest/internal/transport/http/json"
	"attest/internal/transport/http/shared"
	"attest/internal/verification"
	id "attest/pkg/domain"
	dErrors "attest/pkg/domain-errors"
)

// callerHeader carries the caller's ledger identity. Empty means anonymous.
const callerHeader = "X-Caller-Identity"

// Pinger reports storage reachability for the health endpoint.
type Pinger interface {
	Ping(ctx context.Context) error
}

// ContentResolver resolves a content hash to its retrieval location.
type ContentResolver interface {
	URL(hash id.ContentHash) string
}

// Handler bundles the domain services behind the HTTP surface.
type Handler struct {
	issuance   *issuance.Coordinator
	gateway    *verification.Gateway
	revocation *revocation.Service
	sharing    *sharing.Service
	audit      *audit.Publisher
	content    ContentResolver
	pinger     Pinger
	logger     *slog.Logger
}

// NewHandler wires the domain services into the HTTP layer. pinger may be nil
// when the process runs on in-memory stores.
func NewHandler(
	ic *issuance.Coordinator,
	gw *verification.Gateway,
	rs *revocation.Service,
	ss *sharing.Service,
	ap *audit.Publisher,
	cr ContentResolver,
	pinger Pinger,
	logger *slog.Logger,
) *Handler {
	return &Handler{
		issuance:   ic,
		gateway:    gw,
		revocation: rs,
		sharing:    ss,
		audit:      ap,
		content:    cr,
		pinger:     pinger,
		logger:     logger,
	}
}

type issueBody struct {
	Student     string `json:"student"`
	Institution string `json:"institution"`
	DegreeLabel string `json:"degree_label"`
	Document    []byte `json:"document"`
}

type credentialResponse struct {
	TokenID     uint64    `json:"token_id"`
	Student     string    `json:"student"`
	Institution string    `json:"institution"`
	DegreeLabel string    `json:"degree_label"`
	IssueDate   time.Time `json:"issue_date"`
	ContentHash string    `json:"content_hash"`
	DocumentURL string    `json:"document_url,omitempty"`
	Revoked     bool      `json:"revoked"`
}

func (h *Handler) toCredentialResponse(cred ledger.Credential) credentialResponse {
	resp := credentialResponse{
		TokenID:     uint64(cred.TokenID),
		Student:     cred.Student.String(),
		Institution: cred.Institution.String(),
		DegreeLabel: cred.DegreeLabel,
		IssueDate:   cred.IssueDate,
		ContentHash: cred.ContentHash.String(),
		Revoked:     cred.Revoked,
	}
	if h.content != nil && !cred.ContentHash.IsNil() {
		resp.DocumentURL = h.content.URL(cred.ContentHash)
	}
	return resp
}

func (h *Handler) handleIssue(w http.ResponseWriter, r *http.Request) {
	var body issueBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeInvalidInput, "malformed request body"))
		return
	}

	cred, err := h.issuance.Issue(r.Context(), issuance.IssueRequest{
		Student:     body.Student,
		Institution: body.Institution,
		DegreeLabel: body.DegreeLabel,
		Document:    body.Document,
	})
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	transportjson.WriteJSON(w, http.StatusCreated, h.toCredentialResponse(cred))
}

func (h *Handler) handleVerify(w http.ResponseWriter, r *http.Request) {
	tokenID, err := id.ParseTokenID(chi.URLParam(r, "tokenID"))
	if err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeInvalidInput, "invalid token ID"))
		return
	}
	caller, err := callerIdentity(r)
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	cred, err := h.gateway.Verify(r.Context(), tokenID, caller)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	transportjson.WriteJSON(w, http.StatusOK, h.toCredentialResponse(cred))
}

func (h *Handler) handleListByStudent(w http.ResponseWriter, r *http.Request) {
	student, err := id.ParseIdentity(r.URL.Query().Get("student"))
	if err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeInvalidInput, "invalid student identity"))
		return
	}

	records, err := h.gateway.ListByStudent(r.Context(), student)
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	out := make([]credentialResponse, 0, len(records))
	for _, rec := range records {
		out = append(out, credentialResponse{
			TokenID:     uint64(rec.TokenID),
			Student:     rec.Student.String(),
			Institution: rec.Institution.String(),
			DegreeLabel: rec.DegreeLabel,
			IssueDate:   rec.IssueDate,
			ContentHash: rec.ContentHash.String(),
			Revoked:     rec.Revoked,
		})
	}
	transportjson.WriteJSON(w, http.StatusOK, map[string]any{"credentials": out})
}

func (h *Handler) handleRevoke(w http.ResponseWriter, r *http.Request) {
	tokenID, err := id.ParseTokenID(chi.URLParam(r, "tokenID"))
	if err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeInvalidInput, "invalid token ID"))
		return
	}
	caller, err := callerIdentity(r)
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	if err := h.revocation.Revoke(r.Context(), tokenID, caller); err != nil {
		shared.WriteError(w, err)
		return
	}
	transportjson.WriteJSON(w, http.StatusOK, map[string]any{
		"token_id": uint64(tokenID),
		"revoked":  true,
	})
}

type historyEntry struct {
	Actor     string    `json:"actor"`
	Action    string    `json:"action"`
	Timestamp time.Time `json:"timestamp"`
}

func (h *Handler) handleHistory(w http.ResponseWriter, r *http.Request) {
	tokenID, err := id.ParseTokenID(chi.URLParam(r, "tokenID"))
	if err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeInvalidInput, "invalid token ID"))
		return
	}

	var entries []historyEntry
	for event, err := range h.audit.History(r.Context(), tokenID) {
		if err != nil {
			shared.WriteError(w, dErrors.Wrap(err, dErrors.CodeInternal, "failed to read history"))
			return
		}
		entries = append(entries, historyEntry{
			Actor:     event.Actor,
			Action:    string(event.Action),
			Timestamp: event.Timestamp,
		})
	}
	if entries == nil {
		entries = []historyEntry{}
	}
	transportjson.WriteJSON(w, http.StatusOK, map[string]any{
		"token_id": uint64(tokenID),
		"events":   entries,
	})
}

type shareBody struct {
	TTL string `json:"ttl,omitempty"`
}

func (h *Handler) handleShare(w http.ResponseWriter, r *http.Request) {
	tokenID, err := id.ParseTokenID(chi.URLParam(r, "tokenID"))
	if err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeInvalidInput, "invalid token ID"))
		return
	}
	caller, err := callerIdentity(r)
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	var body shareBody
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			shared.WriteError(w, dErrors.New(dErrors.CodeInvalidInput, "malformed request body"))
			return
		}
	}
	var ttl time.Duration
	if body.TTL != "" {
		ttl, err = time.ParseDuration(body.TTL)
		if err != nil || ttl <= 0 {
			shared.WriteError(w, dErrors.New(dErrors.CodeInvalidInput, "invalid ttl"))
			return
		}
	}

	st, err := h.sharing.Mint(r.Context(), tokenID, caller, ttl)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	transportjson.WriteJSON(w, http.StatusCreated, map[string]any{
		"token":      st.Token,
		"token_id":   uint64(st.CredentialRef),
		"issued_at":  st.IssuedAt,
		"expires_at": st.ExpiresAt,
	})
}

func (h *Handler) handleResolveShare(w http.ResponseWriter, r *http.Request) {
	caller, err := callerIdentity(r)
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	ref, err := h.sharing.Resolve(r.Context(), chi.URLParam(r, "token"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	// A resolved token is a reference, not a bypass: the lookup goes through
	// the same gate as a direct verification.
	cred, err := h.gateway.Verify(r.Context(), ref, caller)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	transportjson.WriteJSON(w, http.StatusOK, h.toCredentialResponse(cred))
}

func (h *Handler) handleQuota(w http.ResponseWriter, r *http.Request) {
	identity, err := id.ParseIdentity(chi.URLParam(r, "identity"))
	if err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeInvalidInput, "invalid identity"))
		return
	}

	rec, err := h.gateway.Quota(r.Context(), identity)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	transportjson.WriteJSON(w, http.StatusOK, map[string]any{
		"identity":  rec.Identity.String(),
		"consumed":  rec.Consumed,
		"limit":     rec.Limit,
		"remaining": rec.Remaining(),
	})
}

func (h *Handler) handleHealthz(w http.ResponseWriter, r *http.Request) {
	if h.pinger != nil {
		if err := h.pinger.Ping(r.Context()); err != nil {
			h.logger.ErrorContext(r.Context(), "health check failed", "error", err)
			transportjson.WriteJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "degraded"})
			return
		}
	}
	transportjson.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// callerIdentity reads the optional caller identity header. An absent header
// means an anonymous caller; a present but malformed one is rejected.
func callerIdentity(r *http.Request) (id.Identity, error) {
	raw := r.Header.Get(callerHeader)
	if raw == "" {
		return id.Identity(""), nil
	}
	identity, err := id.ParseIdentity(raw)
	if err != nil {
		return id.Identity(""), dErrors.New(dErrors.CodeInvalidInput, "invalid caller identity")
	}
	return identity, nil
}
