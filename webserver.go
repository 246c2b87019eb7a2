package main

import (
	"context"
	"errors"
	"sync"
	"time"

	json "github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/valyala/fasthttp"
)

// WebServer exposes the planning engine and the backup pipeline over HTTP.
type WebServer struct {
	cfg     *Config
	log     Logger
	beam    *BeamOptimizer
	backups *BackupService
	audit   *AuditLog

	mu  sync.Mutex
	job *beamJob
}

func NewWebServer(cfg *Config, log Logger, beam *BeamOptimizer, backups *BackupService, audit *AuditLog) *WebServer {
	return &WebServer{
		cfg:     cfg,
		log:     log,
		beam:    beam,
		backups: backups,
		audit:   audit,
	}
}

// APIPlanRequest overrides parts of the server's configured plan. Omitted
// sections fall back to the configuration the server was started with.
type APIPlanRequest struct {
	Province        string          `json:"province,omitempty"`
	StartAge        int             `json:"start_age,omitempty"`
	HorizonYears    int             `json:"horizon_years,omitempty"`
	TargetNetAnnual float64         `json:"target_net_annual,omitempty"`
	StartCPPAt      int             `json:"start_cpp_at,omitempty"`
	StartOASAt      int             `json:"start_oas_at,omitempty"`
	Order           string          `json:"order,omitempty"` // nonreg-first, rrsp-first, tfsa-first
	Balances        *BalancesConfig `json:"balances,omitempty"`
	Returns         *ReturnsConfig  `json:"returns,omitempty"`
	Benefits        *BenefitsConfig `json:"benefits,omitempty"`
	Decisions       []YearDecision  `json:"decisions,omitempty"`
	Locale          string          `json:"locale,omitempty"`
}

// APIYearRow is one simulated year flattened for API responses.
type APIYearRow struct {
	Year           int     `json:"year"`
	Age            int     `json:"age"`
	WithdrawTFSA   float64 `json:"withdraw_tfsa"`
	WithdrawNonReg float64 `json:"withdraw_non_reg"`
	WithdrawRRSP   float64 `json:"withdraw_rrsp"`
	WithdrawRRIF   float64 `json:"withdraw_rrif"`
	TaxPaid        float64 `json:"tax_paid"`
	OASClawback    float64 `json:"oas_clawback"`
	GISBenefit     float64 `json:"gis_benefit"`
	NetIncome      float64 `json:"net_income"`
	ClosingBalance float64 `json:"closing_balance"`
}

// APIPlanSummary is the aggregate block of a plan response.
type APIPlanSummary struct {
	Name           string  `json:"name"`
	TotalTax       float64 `json:"total_tax"`
	TotalNetIncome float64 `json:"total_net_income"`
	TotalWithdrawn float64 `json:"total_withdrawn"`
	FinalBalance   float64 `json:"final_balance"`
	RanOutOfMoney  bool    `json:"ran_out_of_money"`
	RanOutYear     int     `json:"ran_out_year,omitempty"`
}

// APIPlanResponse is the common result envelope for simulate and optimize.
type APIPlanResponse struct {
	Success   bool           `json:"success"`
	Error     string         `json:"error,omitempty"`
	Summary   APIPlanSummary `json:"summary"`
	Years     []APIYearRow   `json:"years"`
	Decisions []YearDecision `json:"decisions,omitempty"`
}

type apiError struct {
	Status  int    `json:"status"`
	Message string `json:"message"`
}

// beamJob tracks one asynchronous beam run for the polling endpoints.
type beamJob struct {
	id     string
	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	progress BeamProgress
	started  time.Time
	done     bool
	result   *BeamResult
	err      error
}

// APIBeamStatus is the polling payload of a beam job.
type APIBeamStatus struct {
	JobID     string           `json:"job_id"`
	Running   bool             `json:"running"`
	Year      int              `json:"year"`
	Horizon   int              `json:"horizon"`
	BestScore float64          `json:"best_score"`
	Error     string           `json:"error,omitempty"`
	Result    *APIPlanResponse `json:"result,omitempty"`
}

func writeJSON(ctx *fasthttp.RequestCtx, status int, v any) {
	body, err := json.Marshal(v)
	if err != nil {
		ctx.SetStatusCode(fasthttp.StatusInternalServerError)
		return
	}
	ctx.SetContentType("application/json")
	ctx.SetStatusCode(status)
	ctx.SetBody(body)
}

func writeAPIError(ctx *fasthttp.RequestCtx, status int, message string) {
	writeJSON(ctx, status, apiError{Status: status, Message: message})
}

// sessionConfig clones the server config with the request's overrides
// applied, so concurrent requests never mutate shared state.
func (ws *WebServer) sessionConfig(req APIPlanRequest) (*Config, error) {
	cfg := *ws.cfg
	if req.Province != "" {
		cfg.Plan.Province = req.Province
	}
	if req.StartAge > 0 {
		cfg.Plan.StartAge = req.StartAge
	}
	if req.HorizonYears > 0 {
		cfg.Plan.HorizonYears = req.HorizonYears
	}
	if req.TargetNetAnnual > 0 {
		cfg.Plan.TargetNetAnnual = req.TargetNetAnnual
	}
	if req.StartCPPAt > 0 {
		cfg.Plan.StartCPPAt = req.StartCPPAt
	}
	if req.StartOASAt > 0 {
		cfg.Plan.StartOASAt = req.StartOASAt
	}
	if req.Balances != nil {
		cfg.Balances = *req.Balances
	}
	if req.Returns != nil {
		cfg.Returns = *req.Returns
	}
	if req.Benefits != nil {
		cfg.Benefits = *req.Benefits
	}
	// Section overrides replace the whole struct, so fields the request
	// left out get the same defaults a hand-edited config file would.
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func parseOrder(name string) (WithdrawalOrder, bool) {
	switch name {
	case "", "nonreg-first":
		return OrderNonRegFirst, true
	case "rrsp-first":
		return OrderRRSPFirst, true
	case "tfsa-first":
		return OrderTFSAFirst, true
	default:
		return OrderNonRegFirst, false
	}
}

func planResponse(name string, order WithdrawalOrder, decisions []YearDecision, years []YearResult, target float64) APIPlanResponse {
	sum := SummarizePlan(name, order, years, target)
	resp := APIPlanResponse{
		Success: true,
		Summary: APIPlanSummary{
			Name:           sum.Name,
			TotalTax:       sum.TotalTax,
			TotalNetIncome: sum.TotalNetIncome,
			TotalWithdrawn: sum.TotalWithdrawn,
			FinalBalance:   sum.FinalBalance,
			RanOutOfMoney:  sum.RanOutOfMoney,
		},
		Decisions: decisions,
		Years:     make([]APIYearRow, 0, len(years)),
	}
	if sum.RanOutOfMoney {
		resp.Summary.RanOutYear = sum.RanOutYear
	}
	for _, y := range years {
		resp.Years = append(resp.Years, APIYearRow{
			Year:           y.YearIndex,
			Age:            y.Age,
			WithdrawTFSA:   y.Decision.WithdrawTFSA,
			WithdrawNonReg: y.Decision.WithdrawNonReg,
			WithdrawRRSP:   y.Decision.WithdrawRRSP,
			WithdrawRRIF:   y.Decision.WithdrawRRIF,
			TaxPaid:        y.Tax.TotalTax,
			OASClawback:    y.Tax.OASClawback,
			GISBenefit:     y.Tax.GISBenefit,
			NetIncome:      y.NetIncome,
			ClosingBalance: y.Closing.Total(),
		})
	}
	return resp
}

// Handler routes the API. fasthttp handlers must not retain ctx past the
// return, so async work copies what it needs up front.
func (ws *WebServer) Handler() fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		path := string(ctx.Path())
		method := string(ctx.Method())

		switch {
		case path == "/health" && method == fasthttp.MethodGet:
			writeJSON(ctx, fasthttp.StatusOK, map[string]string{"status": "ok"})
		case path == "/api/simulate" && method == fasthttp.MethodPost:
			ws.handleSimulate(ctx)
		case path == "/api/optimize/greedy" && method == fasthttp.MethodPost:
			ws.handleGreedy(ctx)
		case path == "/api/optimize/beam" && method == fasthttp.MethodPost:
			ws.handleBeamStart(ctx)
		case path == "/api/optimize/beam/status" && method == fasthttp.MethodGet:
			ws.handleBeamStatus(ctx)
		case path == "/api/optimize/beam/cancel" && method == fasthttp.MethodPost:
			ws.handleBeamCancel(ctx)
		case path == "/api/robustness" && method == fasthttp.MethodPost:
			ws.handleRobustness(ctx)
		case path == "/api/backup/export" && method == fasthttp.MethodPost:
			ws.handleBackupExport(ctx)
		case path == "/api/backup/import" && method == fasthttp.MethodPost:
			ws.handleBackupImport(ctx)
		case path == "/api/backup/list" && method == fasthttp.MethodGet:
			ws.handleBackupList(ctx)
		case path == "/api/audit" && method == fasthttp.MethodGet:
			ws.handleAudit(ctx)
		default:
			writeAPIError(ctx, fasthttp.StatusNotFound, "not found")
		}
	}
}

func (ws *WebServer) decodePlanRequest(ctx *fasthttp.RequestCtx) (APIPlanRequest, *Config, bool) {
	var req APIPlanRequest
	if body := ctx.PostBody(); len(body) > 0 {
		if err := json.Unmarshal(body, &req); err != nil {
			writeAPIError(ctx, fasthttp.StatusBadRequest, "invalid request body: "+err.Error())
			return req, nil, false
		}
	}
	cfg, err := ws.sessionConfig(req)
	if err != nil {
		writeAPIError(ctx, fasthttp.StatusBadRequest, err.Error())
		return req, nil, false
	}
	return req, cfg, true
}

// handleSimulate runs a fixed decision sequence, or the greedy plan for the
// requested withdrawal order when no decisions are supplied.
func (ws *WebServer) handleSimulate(ctx *fasthttp.RequestCtx) {
	req, cfg, ok := ws.decodePlanRequest(ctx)
	if !ok {
		return
	}
	order, ok := parseOrder(req.Order)
	if !ok {
		writeAPIError(ctx, fasthttp.StatusBadRequest, "unknown withdrawal order: "+req.Order)
		return
	}

	s := cfg.Session()
	decisions := req.Decisions
	if len(decisions) == 0 {
		decisions = GreedyPlanOrdered(s, order)
	}
	years := SimulateYears(s.Opening, s.Assumptions, s.Tables, decisions, s.HorizonYears)
	writeJSON(ctx, fasthttp.StatusOK, planResponse("simulation", order, decisions, years, s.TargetNetAnnual))
}

func (ws *WebServer) handleGreedy(ctx *fasthttp.RequestCtx) {
	req, cfg, ok := ws.decodePlanRequest(ctx)
	if !ok {
		return
	}
	order, ok := parseOrder(req.Order)
	if !ok {
		writeAPIError(ctx, fasthttp.StatusBadRequest, "unknown withdrawal order: "+req.Order)
		return
	}

	s := cfg.Session()
	decisions := GreedyPlanOrdered(s, order)
	years := SimulateYears(s.Opening, s.Assumptions, s.Tables, decisions, s.HorizonYears)
	writeJSON(ctx, fasthttp.StatusOK, planResponse("greedy "+order.ShortName(), order, decisions, years, s.TargetNetAnnual))
}

// handleBeamStart launches an asynchronous beam run and returns a job id.
// Only one run at a time; a second start while one is outstanding returns
// 409 Conflict.
func (ws *WebServer) handleBeamStart(ctx *fasthttp.RequestCtx) {
	_, cfg, ok := ws.decodePlanRequest(ctx)
	if !ok {
		return
	}

	runCtx, cancel := context.WithCancel(context.Background())
	progressCh, outcomeCh, err := ws.beam.Run(runCtx, cfg.BeamParams())
	if err != nil {
		cancel()
		if errors.Is(err, ErrRunInProgress) {
			writeAPIError(ctx, fasthttp.StatusConflict, err.Error())
			return
		}
		writeAPIError(ctx, fasthttp.StatusBadRequest, err.Error())
		return
	}

	job := &beamJob{id: uuid.NewString(), ctx: runCtx, cancel: cancel, started: time.Now()}
	ws.mu.Lock()
	ws.job = job
	ws.mu.Unlock()

	go func() {
		for pr := range progressCh {
			job.mu.Lock()
			job.progress = pr
			job.mu.Unlock()
		}
		outcome, received := <-outcomeCh
		job.cancel() // The run is over either way; release its context.
		job.mu.Lock()
		job.done = true
		if !received {
			job.err = context.Canceled
		} else if outcome.Err != nil {
			job.err = outcome.Err
		} else {
			job.result = outcome.Result
		}
		job.mu.Unlock()
	}()

	writeJSON(ctx, fasthttp.StatusAccepted, map[string]string{
		"job_id": job.id,
		"status": "running",
	})
}

func (ws *WebServer) currentJob(ctx *fasthttp.RequestCtx) *beamJob {
	ws.mu.Lock()
	job := ws.job
	ws.mu.Unlock()
	if job == nil {
		writeAPIError(ctx, fasthttp.StatusNotFound, "no beam run has been started")
		return nil
	}
	if id := string(ctx.QueryArgs().Peek("job")); id != "" && id != job.id {
		writeAPIError(ctx, fasthttp.StatusNotFound, "unknown job id")
		return nil
	}
	return job
}

func (ws *WebServer) handleBeamStatus(ctx *fasthttp.RequestCtx) {
	job := ws.currentJob(ctx)
	if job == nil {
		return
	}

	job.mu.Lock()
	defer job.mu.Unlock()

	status := APIBeamStatus{
		JobID:     job.id,
		Running:   !job.done,
		Year:      job.progress.Year,
		Horizon:   ws.cfg.Plan.HorizonYears,
		BestScore: job.progress.BestScore,
	}
	if job.err != nil {
		status.Error = job.err.Error()
	}
	if job.result != nil {
		resp := planResponse("beam", OrderNonRegFirst, job.result.Decisions, job.result.Results, ws.cfg.Plan.TargetNetAnnual)
		status.Result = &resp
	}
	writeJSON(ctx, fasthttp.StatusOK, status)
}

func (ws *WebServer) handleBeamCancel(ctx *fasthttp.RequestCtx) {
	job := ws.currentJob(ctx)
	if job == nil {
		return
	}
	job.cancel()
	writeJSON(ctx, fasthttp.StatusOK, map[string]string{"job_id": job.id, "status": "cancelling"})
}

// handleRobustness stress-tests a decision sequence under the shock
// battery. Decisions default to the greedy plan, matching the CLI.
func (ws *WebServer) handleRobustness(ctx *fasthttp.RequestCtx) {
	req, cfg, ok := ws.decodePlanRequest(ctx)
	if !ok {
		return
	}

	s := cfg.Session()
	decisions := req.Decisions
	if len(decisions) == 0 {
		decisions = GreedyPlan(s)
	}
	writeJSON(ctx, fasthttp.StatusOK, EvaluateRobustness(s, decisions, req.Locale))
}

type apiBackupRequest struct {
	Password    string          `json:"password"`
	Description string          `json:"description,omitempty"`
	Content     json.RawMessage `json:"content,omitempty"`
}

// handleBackupExport creates a manual backup slot and returns the encrypted
// blob, suitable for saving to a file.
func (ws *WebServer) handleBackupExport(ctx *fasthttp.RequestCtx) {
	var req apiBackupRequest
	if err := json.Unmarshal(ctx.PostBody(), &req); err != nil {
		writeAPIError(ctx, fasthttp.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.Password == "" {
		writeAPIError(ctx, fasthttp.StatusBadRequest, "password is required")
		return
	}

	meta, err := ws.backups.CreateBackup(ctx, req.Password, req.Description, false)
	if err != nil {
		writeAPIError(ctx, fasthttp.StatusInternalServerError, err.Error())
		return
	}
	blob, err := ws.backups.ExportBackup(ctx, meta.ID)
	if err != nil {
		writeAPIError(ctx, fasthttp.StatusInternalServerError, err.Error())
		return
	}
	ctx.SetContentType("application/json")
	ctx.SetStatusCode(fasthttp.StatusOK)
	ctx.SetBody(blob)
}

// handleBackupImport restores from uploaded file content. All four known
// file shapes are accepted.
func (ws *WebServer) handleBackupImport(ctx *fasthttp.RequestCtx) {
	var req apiBackupRequest
	if err := json.Unmarshal(ctx.PostBody(), &req); err != nil {
		writeAPIError(ctx, fasthttp.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if len(req.Content) == 0 {
		writeAPIError(ctx, fasthttp.StatusBadRequest, "content is required")
		return
	}

	restored, err := ws.backups.ImportFile(ctx, req.Content, req.Password)
	if err != nil {
		switch {
		case errors.Is(err, ErrDecryptionFailed):
			writeAPIError(ctx, fasthttp.StatusUnauthorized, "decryption failed, check the password")
		case errors.Is(err, ErrFormatUnrecognized):
			writeAPIError(ctx, fasthttp.StatusUnprocessableEntity, "unrecognized backup format")
		case errors.Is(err, ErrValidationFailed):
			writeAPIError(ctx, fasthttp.StatusUnprocessableEntity, err.Error())
		default:
			writeAPIError(ctx, fasthttp.StatusInternalServerError, err.Error())
		}
		return
	}
	writeJSON(ctx, fasthttp.StatusOK, map[string]any{"restored": restored})
}

func (ws *WebServer) handleBackupList(ctx *fasthttp.RequestCtx) {
	writeJSON(ctx, fasthttp.StatusOK, ws.backups.ListBackups(ctx))
}

func (ws *WebServer) handleAudit(ctx *fasthttp.RequestCtx) {
	severity := Severity(string(ctx.QueryArgs().Peek("severity")))
	writeJSON(ctx, fasthttp.StatusOK, ws.audit.Events(severity))
}

// Serve blocks on the listener.
func (ws *WebServer) Serve() error {
	ws.log.Infof("API listening on http://%s", ws.cfg.Server.Addr)
	return fasthttp.ListenAndServe(ws.cfg.Server.Addr, ws.Handler())
}
