package server

import (
	"database/sql"
	"log/slog"
	"net/http"

	"github.com/dukerupert/tally/internal/handler"
	"github.com/dukerupert/tally/internal/ledger"
	"github.com/dukerupert/tally/internal/middleware"
	"github.com/dukerupert/tally/internal/notify"
	"github.com/dukerupert/tally/internal/store"
	"github.com/dukerupert/tally/internal/workflow"
)

type Server struct {
	db          *sql.DB
	hub         *notify.Hub
	memberH     *handler.FamilyMemberHandler
	taskH       *handler.TaskHandler
	rewardH     *handler.RewardHandler
	assignmentH *handler.AssignmentHandler
	redemptionH *handler.RedemptionHandler
	ledgerH     *handler.LedgerHandler
	logger      *slog.Logger
}

// New wires the stores, ledger service, workflow engine and handlers.
func New(db *sql.DB, logger *slog.Logger) *Server {
	hub := notify.NewHub(logger.With("component", "notify"))

	memberStore := store.NewFamilyMemberStore(db)
	taskStore := store.NewTaskStore(db)
	rewardStore := store.NewRewardStore(db)
	ledgerSvc := ledger.NewService(db)

	engine := workflow.NewEngine(db, memberStore, taskStore, rewardStore, ledgerSvc, hub, logger.With("component", "workflow"))

	return &Server{
		db:          db,
		hub:         hub,
		memberH:     handler.NewFamilyMemberHandler(memberStore),
		taskH:       handler.NewTaskHandler(taskStore),
		rewardH:     handler.NewRewardHandler(rewardStore),
		assignmentH: handler.NewAssignmentHandler(engine, taskStore),
		redemptionH: handler.NewRedemptionHandler(engine, rewardStore),
		ledgerH:     handler.NewLedgerHandler(ledgerSvc),
		logger:      logger,
	}
}

// Hub exposes the notification hub for wiring outside the HTTP surface.
func (s *Server) Hub() *notify.Hub {
	return s.hub
}

// Router builds the HTTP routes.
func (s *Server) Router() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", s.healthHandler)
	mux.HandleFunc("GET /ws", notify.HandleWebSocket(s.hub))

	// Family members
	mux.HandleFunc("POST /api/members", s.memberH.Create)
	mux.HandleFunc("GET /api/families/{id}/members", s.memberH.List)
	mux.HandleFunc("PUT /api/members/{id}", s.memberH.Update)
	mux.HandleFunc("DELETE /api/members/{id}", s.memberH.Delete)

	// Ledger
	mux.HandleFunc("GET /api/members/{id}/balance", s.ledgerH.Balance)
	mux.HandleFunc("GET /api/members/{id}/ledger", s.ledgerH.History)
	mux.HandleFunc("GET /api/members/{id}/ledger/summary", s.ledgerH.Aggregate)
	mux.HandleFunc("POST /api/ledger/adjust", s.ledgerH.Adjust)

	// Tasks
	mux.HandleFunc("POST /api/tasks", s.taskH.Create)
	mux.HandleFunc("GET /api/families/{id}/tasks", s.taskH.List)
	mux.HandleFunc("PUT /api/tasks/{id}", s.taskH.Update)
	mux.HandleFunc("DELETE /api/tasks/{id}", s.taskH.Delete)

	// Assignments
	mux.HandleFunc("POST /api/assignments", s.assignmentH.Create)
	mux.HandleFunc("GET /api/members/{id}/assignments", s.assignmentH.ListByMember)
	mux.HandleFunc("GET /api/families/{id}/assignments/pending_review", s.assignmentH.ListPendingReview)
	mux.HandleFunc("POST /api/assignments/{id}/start", s.assignmentH.Start)
	mux.HandleFunc("POST /api/assignments/{id}/submit", s.assignmentH.Submit)
	mux.HandleFunc("POST /api/assignments/{id}/review", s.assignmentH.Review)
	mux.HandleFunc("GET /api/assignments/{id}/submissions", s.assignmentH.ListSubmissions)

	// Rewards
	mux.HandleFunc("POST /api/rewards", s.rewardH.Create)
	mux.HandleFunc("GET /api/families/{id}/rewards", s.rewardH.List)
	mux.HandleFunc("PUT /api/rewards/{id}", s.rewardH.Update)
	mux.HandleFunc("DELETE /api/rewards/{id}", s.rewardH.Delete)

	// Redemptions
	mux.HandleFunc("POST /api/redemptions", s.redemptionH.Request)
	mux.HandleFunc("GET /api/members/{id}/redemptions", s.redemptionH.ListByChild)
	mux.HandleFunc("GET /api/families/{id}/redemptions/pending", s.redemptionH.ListPendingByFamily)
	mux.HandleFunc("POST /api/redemptions/{id}/approve", s.redemptionH.Approve)
	mux.HandleFunc("POST /api/redemptions/{id}/deny", s.redemptionH.Deny)
	mux.HandleFunc("POST /api/redemptions/{id}/cancel", s.redemptionH.Cancel)

	var h http.Handler = mux
	h = middleware.Actor(h)
	h = middleware.RequestLogger(s.logger)(h)
	return h
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	if err := s.db.Ping(); err != nil {
		http.Error(w, "db unavailable", http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}
