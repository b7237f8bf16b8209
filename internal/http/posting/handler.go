package posting

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/bankadmin/ledger/internal/http/respond"
	"github.com/bankadmin/ledger/internal/http/transaction"
	"github.com/bankadmin/ledger/internal/importer"
	"github.com/bankadmin/ledger/internal/ledger"
)

const maxUploadBytes = 10 << 20

type Handler struct {
	importSvc *importer.Service
	ledgerSvc *ledger.Service
}

func NewHandler(importSvc *importer.Service, ledgerSvc *ledger.Service) *Handler {
	return &Handler{
		importSvc: importSvc,
		ledgerSvc: ledgerSvc,
	}
}

func (h *Handler) Routes(r chi.Router) {
	r.Post("/import", h.importBatch)
}

type importResponse struct {
	Message      string                            `json:"message"`
	Posted       int                               `json:"posted"`
	Transactions []transaction.TransactionResponse `json:"transactions"`
}

func (h *Handler) importBatch(w http.ResponseWriter, r *http.Request) {
	caller, ok := respond.Caller(w, r)
	if !ok {
		return
	}

	// Reject before reading the upload.
	if !caller.IsEmployee() {
		respond.ServiceError(w, r, ledger.ErrForbidden, "import postings")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)

	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		respond.Error(w, http.StatusBadRequest, "invalid_request", "failed to parse form: "+err.Error())
		return
	}

	file, _, err := r.FormFile("file")
	if err != nil {
		respond.Error(w, http.StatusBadRequest, "invalid_request", "file field is required")
		return
	}
	defer file.Close()

	postings, err := h.importSvc.Import(importer.Format(r.FormValue("format")), file)
	if err != nil {
		respond.ServiceError(w, r, err, "parse postings")
		return
	}

	res, err := h.ledgerSvc.PostBatch(r.Context(), caller, postings)
	if err != nil {
		respond.ServiceError(w, r, err, "import postings")
		return
	}

	respond.JSON(w, http.StatusCreated, importResponse{
		Message:      "Postings imported successfully",
		Posted:       len(res.Transactions),
		Transactions: transaction.ToResponseList(res.Transactions),
	})
}
