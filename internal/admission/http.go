package admission

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"zkgate/internal/apperrors"
)

const (
	headerReceipt           = "x-zk-receipt"
	headerNullifier         = "x-zk-nullifier"
	headerResponseNullifier = "x-payment-nullifier"
)

// decisionsTotal counts admission outcomes by result, labeled with the deny
// reason when denied. The wire contract itself carries no metrics fields;
// this is ambient observability alongside it, not part of the decision
// protocol.
var decisionsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "zkgate_admission_decisions_total",
		Help: "Admission Controller outcomes by result and, for denials, reason.",
	},
	[]string{"result", "reason"},
)

func init() {
	prometheus.MustRegister(decisionsTotal)
}

// Handler adapts Controller to an Envoy ext_authz-shaped HTTP contract
//: request headers x-zk-receipt / x-zk-nullifier in, response
// header x-payment-nullifier on allow, status code carrying the gRPC-coded
// decision.
type Handler struct {
	controller *Controller
	log        *zap.Logger
}

// NewHandler constructs a Handler.
func NewHandler(controller *Controller, log *zap.Logger) *Handler {
	return &Handler{controller: controller, log: log}
}

// Mount registers the admission route on r.
func (h *Handler) Mount(r chi.Router) {
	r.Get("/authorize", h.authorize)
	r.Post("/authorize", h.authorize)
}

func (h *Handler) authorize(w http.ResponseWriter, r *http.Request) {
	receiptHex := r.Header.Get(headerReceipt)
	nullifierHex := r.Header.Get(headerNullifier)

	if receiptHex == "" || nullifierHex == "" {
		decisionsTotal.WithLabelValues("deny", "missing_header").Inc()
		writeDenied(w, apperrors.ErrInvalidArgument.Wrap(errors.New("missing required header")))
		return
	}

	decision, err := h.controller.Decide(r.Context(), Request{
		ReceiptHex:   receiptHex,
		NullifierHex: nullifierHex,
	})
	if err != nil {
		reason := reasonFor(err)
		decisionsTotal.WithLabelValues("deny", reason).Inc()
		h.log.Info("admission denied", zap.String("reason", reason), zap.String("nullifier", nullifierHex))
		writeDenied(w, err)
		return
	}

	decisionsTotal.WithLabelValues("allow", "").Inc()
	w.Header().Set(headerResponseNullifier, decision.EchoedNullifier)
	w.WriteHeader(http.StatusOK)
}

// reasonFor extracts a short machine-stable label from an apperrors.Error,
// falling back to "unknown" for anything else.
func reasonFor(err error) string {
	var e *apperrors.Error
	if errors.As(err, &e) {
		return e.Message
	}
	return "unknown"
}

// writeDenied maps an apperrors.Error to its HTTP status, with a short
// user-safe message body.
func writeDenied(w http.ResponseWriter, err error) {
	status := apperrors.HTTPStatusFor(err)
	http.Error(w, apperrors.CodeFor(err).String()+": "+messageFor(err), status)
}

func messageFor(err error) string {
	var e *apperrors.Error
	if errors.As(err, &e) {
		return e.Message
	}
	return "internal error"
}
