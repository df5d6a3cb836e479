// Package httpapi serves the editor session over local HTTP: an HTML
// preview of the invoice and a JSON API for every editor action.
package httpapi

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"
	httpSwagger "github.com/swaggo/http-swagger"
	"go.uber.org/zap"

	"github.com/invoicing-editor/pkg/config"
	"github.com/invoicing-editor/pkg/editor"
	"github.com/invoicing-editor/pkg/export"
	"github.com/invoicing-editor/pkg/invoice"
	"github.com/invoicing-editor/pkg/logging"
	"github.com/invoicing-editor/pkg/notify"
	"github.com/invoicing-editor/pkg/qrcode"
)

// MaxLogoSize limits logo uploads.
const MaxLogoSize = 5 << 20

//go:embed templates/*.html
var templates embed.FS

// Server routes HTTP requests to a session.
type Server struct {
	session *editor.Session
	logger  *zap.Logger
	tmpl    *template.Template
	router  *mux.Router
}

// New builds the router for s.
func New(s *editor.Session, logger *zap.Logger) (*Server, error) {
	tmpl, err := template.New("").Funcs(template.FuncMap{
		"money": invoice.FormatMoney,
	}).ParseFS(templates, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("parse templates: %w", err)
	}
	srv := &Server{session: s, logger: logging.OrNop(logger), tmpl: tmpl}
	srv.router = srv.routes()
	return srv, nil
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) routes() *mux.Router {
	r := mux.NewRouter()
	r.Use(loggingMiddleware(s.logger))

	r.HandleFunc("/", s.previewHandler).Methods("GET")
	r.PathPrefix("/swagger/").Handler(httpSwagger.WrapHandler)

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/invoice", s.getInvoiceHandler).Methods("GET")
	api.HandleFunc("/invoice", s.importInvoiceHandler).Methods("PUT")
	api.HandleFunc("/invoice/reset", s.resetHandler).Methods("POST")
	api.HandleFunc("/invoice/totals", s.totalsHandler).Methods("GET")
	api.HandleFunc("/invoice/fields/{field}", s.setFieldHandler).Methods("PUT")
	api.HandleFunc("/invoice/items", s.addItemHandler).Methods("POST")
	api.HandleFunc("/invoice/items/{id}", s.updateItemHandler).Methods("PATCH")
	api.HandleFunc("/invoice/items/{id}", s.removeItemHandler).Methods("DELETE")
	api.HandleFunc("/invoice/number", s.autoNumberHandler).Methods("POST")
	api.HandleFunc("/invoice/status", s.statusHandler).Methods("PUT")
	api.HandleFunc("/invoice/logo", s.uploadLogoHandler).Methods("POST")
	api.HandleFunc("/invoice/logo", s.removeLogoHandler).Methods("DELETE")
	api.HandleFunc("/invoice/export", s.exportHandler).Methods("POST")
	api.HandleFunc("/invoice/email", s.emailHandler).Methods("POST")
	api.HandleFunc("/invoice/link", s.linkHandler).Methods("GET")
	api.HandleFunc("/invoice/qr.png", s.qrHandler).Methods("GET")

	api.HandleFunc("/clients", s.listClientsHandler).Methods("GET")
	api.HandleFunc("/clients", s.saveClientHandler).Methods("POST")
	api.HandleFunc("/clients/{id}/select", s.selectClientHandler).Methods("POST")
	api.HandleFunc("/clients/{id}", s.deleteClientHandler).Methods("DELETE")
	return r
}

// ListenAndServe serves until ctx is done, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, cfg config.ServerConfig) error {
	hs := &http.Server{
		Addr:         cfg.Addr,
		Handler:      s,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}
	errc := make(chan error, 1)
	go func() {
		s.logger.Info("starting HTTP server", zap.String("addr", cfg.Addr))
		errc <- hs.ListenAndServe()
	}()
	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := hs.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errc; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

type previewData struct {
	Invoice invoice.Invoice
	Totals  invoice.Totals
	Overdue bool
	Logo    template.URL
}

func (s *Server) previewHandler(w http.ResponseWriter, r *http.Request) {
	inv := s.session.Invoice()
	data := previewData{Invoice: inv, Totals: inv.Totals(), Overdue: inv.Overdue(s.session.Now())}
	if mt, _, err := export.DecodeDataURL(inv.Meta.Logo); err == nil && strings.HasPrefix(mt, "image/") {
		data.Logo = template.URL(inv.Meta.Logo)
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := s.tmpl.ExecuteTemplate(w, "invoice.html", data); err != nil {
		s.logger.Error("render preview", zap.Error(err))
	}
}

type invoiceResponse struct {
	Invoice invoice.Invoice `json:"invoice"`
	Totals  invoice.Totals  `json:"totals"`
}

func (s *Server) writeInvoice(w http.ResponseWriter, inv invoice.Invoice, err error) {
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, invoiceResponse{Invoice: inv, Totals: inv.Totals()})
}

func (s *Server) getInvoiceHandler(w http.ResponseWriter, r *http.Request) {
	s.writeInvoice(w, s.session.Invoice(), nil)
}

func (s *Server) importInvoiceHandler(w http.ResponseWriter, r *http.Request) {
	raw, err := io.ReadAll(io.LimitReader(r.Body, 2*MaxLogoSize))
	if err != nil {
		s.writeError(w, err)
		return
	}
	inv, err := s.session.Import(r.Context(), raw)
	s.writeInvoice(w, inv, err)
}

func (s *Server) resetHandler(w http.ResponseWriter, r *http.Request) {
	inv, err := s.session.Reset(r.Context())
	s.writeInvoice(w, inv, err)
}

func (s *Server) totalsHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.session.Totals())
}

func (s *Server) setFieldHandler(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Value any `json:"value"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid JSON body"})
		return
	}
	var value string
	switch v := body.Value.(type) {
	case string:
		value = v
	case float64:
		value = strconv.FormatFloat(v, 'f', -1, 64)
	case nil:
	default:
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "value must be a string or a number"})
		return
	}
	inv, err := s.session.SetField(r.Context(), mux.Vars(r)["field"], value)
	s.writeInvoice(w, inv, err)
}

func (s *Server) addItemHandler(w http.ResponseWriter, r *http.Request) {
	it, err := s.session.AddItem(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, it)
}

func (s *Server) updateItemHandler(w http.ResponseWriter, r *http.Request) {
	var patch invoice.ItemPatch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid JSON body"})
		return
	}
	inv, err := s.session.UpdateItem(r.Context(), mux.Vars(r)["id"], patch)
	s.writeInvoice(w, inv, err)
}

func (s *Server) removeItemHandler(w http.ResponseWriter, r *http.Request) {
	inv, err := s.session.RemoveItem(r.Context(), mux.Vars(r)["id"])
	s.writeInvoice(w, inv, err)
}

func (s *Server) autoNumberHandler(w http.ResponseWriter, r *http.Request) {
	number, err := s.session.AutoNumber(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"number": number})
}

func (s *Server) statusHandler(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Status invoice.Status `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid JSON body"})
		return
	}
	inv, err := s.session.SetStatus(r.Context(), body.Status)
	s.writeInvoice(w, inv, err)
}

func (s *Server) uploadLogoHandler(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, MaxLogoSize+1<<10)
	if err := r.ParseMultipartForm(MaxLogoSize); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "logo upload too large or malformed"})
		return
	}
	file, header, err := r.FormFile("logo")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "missing logo file"})
		return
	}
	defer file.Close()
	data, err := io.ReadAll(io.LimitReader(file, MaxLogoSize+1))
	if err != nil {
		s.writeError(w, err)
		return
	}
	if len(data) > MaxLogoSize {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "logo larger than 5 MB"})
		return
	}
	mediaType := header.Header.Get("Content-Type")
	if mediaType == "" || mediaType == "application/octet-stream" {
		mediaType = http.DetectContentType(data)
	}
	inv, err := s.session.SetLogo(r.Context(), mediaType, data)
	s.writeInvoice(w, inv, err)
}

func (s *Server) removeLogoHandler(w http.ResponseWriter, r *http.Request) {
	inv, err := s.session.RemoveLogo(r.Context())
	s.writeInvoice(w, inv, err)
}

func (s *Server) exportHandler(w http.ResponseWriter, r *http.Request) {
	out, err := s.session.ExportPDF(r.Context())
	if err != nil && (out.Data == nil || errors.Is(err, editor.ErrSuperseded)) {
		s.writeError(w, err)
		return
	}
	if err != nil {
		s.logger.Warn("export saved but not recorded", zap.Error(err))
	}
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", out.Name))
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Length", strconv.Itoa(len(out.Data)))
	w.Header().Set("X-Export-Location", out.Location)
	w.Write(out.Data)
}

type emailResponse struct {
	To     string `json:"to"`
	Sent   bool   `json:"sent"`
	Mailto string `json:"mailto,omitempty"`
}

func (s *Server) emailHandler(w http.ResponseWriter, r *http.Request) {
	res, err := s.session.Email(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, emailResponse{To: res.To, Sent: res.Sent, Mailto: res.Mailto})
}

func (s *Server) linkHandler(w http.ResponseWriter, r *http.Request) {
	link, err := s.session.ViewLink()
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"link": link})
}

func (s *Server) qrHandler(w http.ResponseWriter, r *http.Request) {
	img, err := s.session.PaymentQR(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	if img == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	w.Write(img)
}

func (s *Server) listClientsHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.session.Clients())
}

func (s *Server) saveClientHandler(w http.ResponseWriter, r *http.Request) {
	rec, err := s.session.SaveClient(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, rec)
}

func (s *Server) selectClientHandler(w http.ResponseWriter, r *http.Request) {
	inv, err := s.session.SelectClient(r.Context(), mux.Vars(r)["id"])
	s.writeInvoice(w, inv, err)
}

func (s *Server) deleteClientHandler(w http.ResponseWriter, r *http.Request) {
	if err := s.session.DeleteClient(r.Context(), mux.Vars(r)["id"]); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type errorResponse struct {
	Error string `json:"error"`
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, invoice.ErrUnknownField),
		errors.Is(err, invoice.ErrInvalidValue),
		errors.Is(err, editor.ErrLogoType),
		errors.Is(err, export.ErrBadLogo):
		return http.StatusBadRequest
	case errors.Is(err, editor.ErrClientNotFound),
		errors.Is(err, editor.ErrNoViewURL):
		return http.StatusNotFound
	case errors.Is(err, editor.ErrSuperseded),
		errors.Is(err, qrcode.ErrStale):
		return http.StatusConflict
	case errors.Is(err, notify.ErrSendFailed):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	code := statusFor(err)
	if code == http.StatusInternalServerError {
		s.logger.Error("request failed", zap.Error(err))
	}
	writeJSON(w, code, errorResponse{Error: err.Error()})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func loggingMiddleware(logger *zap.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(wrapped, r)

			logger.Info("HTTP request processed",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status_code", wrapped.statusCode),
				zap.Int64("duration_ms", time.Since(start).Milliseconds()),
			)
		})
	}
}

type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}
