package service

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"sync"

	"github.com/olachain/ola/src/chain"
	"github.com/olachain/ola/src/node"
	"github.com/olachain/ola/src/txpool"
	"github.com/olachain/ola/src/validation"
	"github.com/sirupsen/logrus"
)

// Service exposes the node's ledger and peers over HTTP.
type Service struct {
	sync.Mutex

	bindAddress string
	node        *node.Node
	mux         *http.ServeMux
	server      *http.Server
	logger      *logrus.Entry
}

// NewService ...
func NewService(bindAddress string, n *node.Node, logger *logrus.Entry) *Service {
	service := Service{
		bindAddress: bindAddress,
		node:        n,
		mux:         http.NewServeMux(),
		logger:      logger,
	}

	service.registerHandlers()

	service.server = &http.Server{
		Addr:    bindAddress,
		Handler: service.mux,
	}

	return &service
}

func (s *Service) registerHandlers() {
	s.logger.Debug("Registering Ola API handlers")
	s.mux.HandleFunc("/stats", s.makeHandler(s.GetStats))
	s.mux.HandleFunc("/head", s.makeHandler(s.GetHead))
	s.mux.HandleFunc("/block/", s.makeHandler(s.GetBlock))
	s.mux.HandleFunc("/account/", s.makeHandler(s.GetAccount))
	s.mux.HandleFunc("/peers", s.makeHandler(s.GetPeers))
	s.mux.HandleFunc("/tx", s.makeHandler(s.SubmitTx))
}

func (s *Service) makeHandler(fn func(http.ResponseWriter, *http.Request)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.Lock()
		defer s.Unlock()

		// enable CORS
		w.Header().Set("Access-Control-Allow-Origin", "*")

		fn(w, r)
	}
}

// Handler returns the router of the API.
func (s *Service) Handler() http.Handler {
	return s.mux
}

// Serve calls ListenAndServe. This is a blocking call.
func (s *Service) Serve() {
	s.logger.WithField("bind_address", s.bindAddress).Debug("Serving Ola API")

	err := s.server.ListenAndServe()
	if err != nil && err != http.ErrServerClosed {
		s.logger.Error(err)
	}
}

// Close stops a running server.
func (s *Service) Close() error {
	return s.server.Close()
}

// GetStats ...
func (s *Service) GetStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.node.GetStats())
}

// GetHead returns the head block of the canonical chain.
func (s *Service) GetHead(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.node.GetHead())
}

// GetBlock returns a block by height, or by hash when the parameter starts
// with 0x.
func (s *Service) GetBlock(w http.ResponseWriter, r *http.Request) {
	param := r.URL.Path[len("/block/"):]

	var (
		block *chain.Block
		ok    bool
	)

	if strings.HasPrefix(param, "0x") || strings.HasPrefix(param, "0X") {
		block, ok = s.node.GetBlockByHash(strings.ToUpper(param))
	} else {
		height, err := strconv.ParseUint(param, 10, 64)
		if err != nil {
			s.logger.WithError(err).Debugf("Parsing block parameter %s", param)
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		block, ok = s.node.GetBlock(height)
	}

	if !ok {
		http.Error(w, "block not found", http.StatusNotFound)
		return
	}

	writeJSON(w, http.StatusOK, block)
}

// GetAccount returns the balance and nonce of an address in the head state.
func (s *Service) GetAccount(w http.ResponseWriter, r *http.Request) {
	param := r.URL.Path[len("/account/"):]

	addr, ok := chain.ParseAddress(param)
	if !ok {
		http.Error(w, "invalid address "+param, http.StatusBadRequest)
		return
	}

	writeJSON(w, http.StatusOK, s.node.GetAccount(addr))
}

// GetPeers ...
func (s *Service) GetPeers(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.node.GetPeers())
}

// SubmitTx decodes a signed transaction and hands it to the node.
func (s *Service) SubmitTx(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var tx chain.Transaction
	if err := json.NewDecoder(r.Body).Decode(&tx); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if err := s.node.SubmitTx(&tx); err != nil {
		status := http.StatusInternalServerError
		switch {
		case err == txpool.ErrKnownTransaction:
			status = http.StatusConflict
		case err == txpool.ErrPoolFull:
			status = http.StatusServiceUnavailable
		default:
			if _, ok := validation.Cause(err); ok {
				status = http.StatusBadRequest
			}
		}
		s.logger.WithError(err).Debug("Rejected transaction")
		http.Error(w, err.Error(), status)
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]string{"hash": tx.Hex()})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
