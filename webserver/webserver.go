package webserver

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"

	"ctcbalance/accounts"
	"ctcbalance/ctcclient"
	"ctcbalance/storage"
)

const (
	DEFAULT_BIND_ADDR = "127.0.0.1"
	DEFAULT_BIND_PORT = 8082
)

// HistoryStore is the read side of the history database
type HistoryStore interface {
	GetBalanceHistory() (storage.History, error)
	GetRewardHistory() (storage.History, error)
	GetRewardMethods() (map[string]string, error)
	GetLastRun() (storage.RunSummary, bool, error)
}

type WebServer struct {
	store    HistoryStore
	accounts []accounts.TrackedAccount
	status   *ctcclient.ChainStatus

	router  *mux.Router
	httpSvr *http.Server
}

type Args struct {
	Store    HistoryStore
	Accounts []accounts.TrackedAccount
	Status   *ctcclient.ChainStatus

	BindAddr string
	BindPort int
}

type ApiError struct {
	Error string `json:"error"`
}

func New(args Args) *WebServer {

	ws := &WebServer{
		store:    args.Store,
		accounts: args.Accounts,
		status:   args.Status,
	}

	ws.router = ws.routes()

	httpAddr := args.BindAddr + ":" + strconv.Itoa(args.BindPort)
	ws.httpSvr = &http.Server{
		Handler:      handlers.CORS(handlers.AllowedOrigins([]string{"*"}))(ws.router),
		Addr:         httpAddr,
		WriteTimeout: 15 * time.Second,
		ReadTimeout:  15 * time.Second,
	}

	return ws
}

func (ws *WebServer) routes() *mux.Router {

	router := mux.NewRouter()

	apiRouter := router.PathPrefix("/api").Subrouter()
	apiRouter.HandleFunc("/health", ws.getHealth).Methods("GET")
	apiRouter.HandleFunc("/accounts", ws.getAccounts).Methods("GET")
	apiRouter.HandleFunc("/balances", ws.getBalances).Methods("GET")
	apiRouter.HandleFunc("/rewards", ws.getRewards).Methods("GET")
	apiRouter.HandleFunc("/rewards/{account}", ws.getAccountRewards).Methods("GET")

	router.Handle("/metrics", promhttp.Handler())

	return router
}

// Handler exposes the routes without CORS, for embedding and tests
func (ws *WebServer) Handler() http.Handler {
	return ws.router
}

// Start serves in the background until shutdownChannel is closed
func (ws *WebServer) Start(shutdownChannel <-chan interface{}, wg *sync.WaitGroup) {

	log.WithField("Addr", ws.httpSvr.Addr).Info("API listening")

	go func() {
		if err := ws.httpSvr.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Error("Httpserver: ListenAndServe()")
		}
		log.Info("Httpserver: Shutdown")
	}()

	wg.Add(1)

	go func() {
		defer wg.Done()

		<-shutdownChannel

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := ws.httpSvr.Shutdown(ctx); err != nil {
			log.WithError(err).Error("Httpserver: Shutdown()")
		}
	}()
}

func apiError(err error, w http.ResponseWriter) {
	apiErrorStatus(err, http.StatusBadRequest, w)
}

func apiErrorStatus(err error, status int, w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(ApiError{err.Error()}); err != nil {
		log.WithError(err).Error("UI Return Encode Failure")
	}
}

func apiReturn(v interface{}, w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.WithError(err).Error("UI Return Encode Failure")
	}
}
