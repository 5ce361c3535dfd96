package httpapi

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"sponsorchain.org/internal/arbitration"
	"sponsorchain.org/internal/audit"
	"sponsorchain.org/internal/factory"
	"sponsorchain.org/internal/identity"
	"sponsorchain.org/internal/ledger"
	"sponsorchain.org/internal/nft"
	"sponsorchain.org/internal/obs"
	"sponsorchain.org/internal/stream"
	"sponsorchain.org/internal/treasury"
)

// ReadyProbe reports service readiness (DB ping when a DB is configured).
type ReadyProbe struct {
	DB *sql.DB
}

func (rp ReadyProbe) Check(ctx context.Context) error {
	if rp.DB == nil {
		return nil
	}
	return rp.DB.PingContext(ctx)
}

// Deps bundles the domain services the API fronts.
type Deps struct {
	Identity *identity.Registry
	Factory  *factory.Factory
	Ledger   *ledger.InMemory
	Disputes *arbitration.Engine
	Tokens   *nft.Registry
	Treasury treasury.Service
	Stream   *stream.Stream
}

// API is the HTTP layer. It owns no business rules: every mutation is
// delegated to a domain service, then mirrored to the audit log and the
// live deal feed.
type API struct {
	mux        *http.ServeMux
	readyProbe ReadyProbe
	version    string
	deps       Deps

	tokenTTL   time.Duration
	rateBurst  int
	ratePerSec int
	maxBody    int64
}

func New(rp ReadyProbe, version string, deps Deps) *API {
	a := &API{
		mux:        http.NewServeMux(),
		readyProbe: rp,
		version:    version,
		deps:       deps,
		tokenTTL:   15 * time.Minute,
		rateBurst:  50,
		ratePerSec: 25,
		maxBody:    1 << 20,
	}

	a.mux.HandleFunc("GET /healthz", a.Healthz)
	a.mux.HandleFunc("GET /readyz", a.Ready)
	a.mux.HandleFunc("GET /v1/info", a.Info)
	a.mux.Handle("GET /metrics", obs.Handler())

	a.mux.HandleFunc("POST /v1/auth/token", a.handleAuthToken)

	a.mux.HandleFunc("POST /v1/users", a.registerUser)
	a.mux.HandleFunc("POST /v1/users/{addr}/verify", a.verifyUser)
	a.mux.HandleFunc("GET /v1/users/{addr}", a.getUser)
	a.mux.HandleFunc("GET /v1/users/{addr}/contracts", a.listUserContracts)

	a.mux.HandleFunc("POST /v1/contracts", a.createContract)
	a.mux.HandleFunc("GET /v1/contracts/{id}", a.getContract)
	a.mux.HandleFunc("POST /v1/contracts/{id}/milestones", a.addMilestones)
	a.mux.HandleFunc("POST /v1/contracts/{id}/activate", a.activateContract)
	a.mux.HandleFunc("POST /v1/contracts/{id}/milestones/{idx}/submit", a.submitMilestone)
	a.mux.HandleFunc("POST /v1/contracts/{id}/milestones/{idx}/approve", a.approveMilestone)
	a.mux.HandleFunc("POST /v1/contracts/{id}/milestones/{idx}/reject", a.rejectMilestone)
	a.mux.HandleFunc("POST /v1/contracts/{id}/document", a.updateDocument)
	a.mux.HandleFunc("POST /v1/contracts/{id}/nft", a.mintContractToken)
	a.mux.HandleFunc("GET /v1/contracts/{id}/disputes", a.listContractDisputes)

	a.mux.HandleFunc("POST /v1/disputes", a.createDispute)
	a.mux.HandleFunc("GET /v1/disputes/{id}", a.getDispute)
	a.mux.HandleFunc("POST /v1/disputes/{id}/votes", a.voteOnDispute)
	a.mux.HandleFunc("POST /v1/disputes/{id}/force-resolve", a.forceResolveDispute)

	a.mux.HandleFunc("GET /v1/tokens/{id}", a.getToken)
	a.mux.HandleFunc("POST /v1/tokens/{id}/transfer", a.transferToken)
	a.mux.HandleFunc("POST /v1/tokens/{id}/royalties", a.recordRoyalty)
	a.mux.HandleFunc("GET /v1/tokens/{id}/royalties", a.listRoyalties)

	a.mux.HandleFunc("POST /v1/treasury/deposits", a.deposit)
	a.mux.HandleFunc("POST /v1/treasury/approvals", a.approveAllowance)
	a.mux.HandleFunc("GET /v1/treasury/accounts/{addr}", a.getTreasuryAccount)
	a.mux.HandleFunc("GET /v1/treasury/payments", a.listPayments)

	a.mux.HandleFunc("GET /v1/stream/deals", a.StreamDeals)

	a.mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})

	return a
}

// Tune overrides the token TTL, rate limits and request body cap. Zero
// values keep the defaults. Call before Handler.
func (a *API) Tune(tokenTTL time.Duration, ratePerSec, rateBurst int, maxBody int64) {
	if tokenTTL > 0 {
		a.tokenTTL = tokenTTL
	}
	if ratePerSec > 0 {
		a.ratePerSec = ratePerSec
	}
	if rateBurst > 0 {
		a.rateBurst = rateBurst
	}
	if maxBody > 0 {
		a.maxBody = maxBody
	}
}

// Handler wires the middleware chain around the mux.
func (a *API) Handler() http.Handler {
	var h http.Handler = a.mux
	h = a.withAuth(h)
	h = WithRequestID(h)
	h = RateLimit(h, a.rateBurst, a.ratePerSec)
	h = MaxBodyBytes(h, a.maxBody)
	h = CORS(h)
	h = SecurityHeaders(h)
	h = Logging(h)
	return obs.Instrument(h)
}

func (a *API) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": "sponsorchain-api",
		"version": a.version,
	})
}

func (a *API) Ready(w http.ResponseWriter, r *http.Request) {
	if err := a.readyProbe.Check(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "not_ready",
			"error":  err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ready",
	})
}

func (a *API) Info(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"name":    "sponsorchain-api",
		"time":    time.Now().UTC().Format(time.RFC3339),
		"version": a.version,
		"escrow":  ledger.DefaultEscrowAddress,
	})
}

func (a *API) audit(ctx context.Context, event string, fields map[string]any) {
	_ = audit.LogEvent(ctx, event, fields)
}

func (a *API) publish(evt stream.DealEvent) {
	if a.deps.Stream != nil {
		a.deps.Stream.Publish(evt)
	}
}

// --- helpers ---

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, r *http.Request, code int, msg string) {
	payload := map[string]any{
		"error": msg,
	}
	if rid := RequestIDFromContext(r.Context()); rid != "" {
		payload["request_id"] = rid
	}
	writeJSON(w, code, payload)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	reader := http.MaxBytesReader(w, r.Body, 1<<20)
	defer reader.Close()
	dec := json.NewDecoder(reader)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is required")
		}
		return err
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		if err == nil {
			return errors.New("unexpected data after JSON body")
		}
		return err
	}
	return nil
}

// handleDomainError maps package sentinels onto HTTP statuses. Unknown
// errors never leak details to the client.
func handleDomainError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, ledger.ErrInvalidInput),
		errors.Is(err, identity.ErrInvalidInput),
		errors.Is(err, arbitration.ErrInvalidInput),
		errors.Is(err, nft.ErrInvalidInput),
		errors.Is(err, treasury.ErrInvalidAmount),
		errors.Is(err, treasury.ErrInvalidAsset):
		writeError(w, r, http.StatusBadRequest, err.Error())
	case errors.Is(err, ledger.ErrUnauthorized),
		errors.Is(err, identity.ErrUnauthorized),
		errors.Is(err, arbitration.ErrUnauthorized),
		errors.Is(err, nft.ErrUnauthorized),
		errors.Is(err, factory.ErrUnauthorized),
		errors.Is(err, factory.ErrRoleRequired):
		writeError(w, r, http.StatusForbidden, err.Error())
	case errors.Is(err, ledger.ErrNotFound),
		errors.Is(err, identity.ErrNotRegistered),
		errors.Is(err, arbitration.ErrNotFound),
		errors.Is(err, nft.ErrNotFound),
		errors.Is(err, treasury.ErrNotFound):
		writeError(w, r, http.StatusNotFound, err.Error())
	case errors.Is(err, ledger.ErrInvalidState),
		errors.Is(err, ledger.ErrTransferFailed),
		errors.Is(err, identity.ErrAlreadyRegistered),
		errors.Is(err, arbitration.ErrAlreadyVoted),
		errors.Is(err, arbitration.ErrDisputeResolved),
		errors.Is(err, nft.ErrAlreadyMinted),
		errors.Is(err, treasury.ErrInsufficientFunds),
		errors.Is(err, treasury.ErrInsufficientAllowance):
		writeError(w, r, http.StatusConflict, err.Error())
	default:
		writeError(w, r, http.StatusInternalServerError, "internal error")
	}
}
