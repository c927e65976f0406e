package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/radieske/draw-settlement/internal/wallet-service/dto"
	"github.com/radieske/draw-settlement/internal/wallet-service/repo"
)

// Repo define a interface de operações de carteira usadas pelo handler HTTP
type Repo interface {
	GetOrCreateWallet(ctx context.Context, userID string) (walletID string, balance decimal.Decimal, err error)
	Credit(ctx context.Context, userID string, amount decimal.Decimal, externalRef string) (walletID string, newBalance decimal.Decimal, duplicate bool, err error)
}

// Server expõe endpoints HTTP para operações de carteira (wallet)
type Server struct {
	log  *zap.Logger
	repo Repo
}

// NewServer instancia o servidor HTTP de wallet
func NewServer(log *zap.Logger, repo Repo) *Server { return &Server{log: log, repo: repo} }

// Router retorna o mux HTTP com as rotas da API de wallet
func (s *Server) Router() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /wallet", s.getWallet) // ?userId=...
	mux.HandleFunc("POST /wallet/credit", s.credit)
	return mux
}

// getWallet retorna (ou cria) a carteira e saldo do usuário
func (s *Server) getWallet(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("userId")
	if userID == "" {
		http.Error(w, "userId required", http.StatusBadRequest)
		return
	}
	walletID, bal, err := s.repo.GetOrCreateWallet(r.Context(), userID)
	if err != nil {
		s.log.Error("get wallet", zap.String("userId", userID), zap.Error(err))
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, dto.WalletResponse{UserID: userID, WalletID: walletID, Balance: bal})
}

// credit incrementa o saldo; repetir o mesmo external_ref não credita de novo
func (s *Server) credit(w http.ResponseWriter, r *http.Request) {
	var req dto.CreditRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad json", http.StatusBadRequest)
		return
	}
	if req.UserID == "" || !req.Amount.IsPositive() {
		http.Error(w, "invalid payload", http.StatusBadRequest)
		return
	}
	walletID, bal, dup, err := s.repo.Credit(r.Context(), req.UserID, req.Amount, req.ExternalRef)
	if err != nil {
		if errors.Is(err, repo.ErrInvalidAmount) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		s.log.Error("wallet credit", zap.String("userId", req.UserID), zap.String("ref", req.ExternalRef), zap.Error(err))
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if dup {
		s.log.Info("duplicate credit ignored", zap.String("userId", req.UserID), zap.String("ref", req.ExternalRef))
	}
	writeJSON(w, dto.CreditResponse{
		WalletResponse: dto.WalletResponse{UserID: req.UserID, WalletID: walletID, Balance: bal},
		Duplicate:      dup,
	})
}

// writeJSON serializa e envia resposta JSON
func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
