package dashboard

import (
	"bytes"
	"context"
	"embed"
	"encoding/json"
	"errors"
	"html/template"
	"net/http"
	"strconv"
	"strings"

	chi "github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/tidwall/gjson"

	"automag/internal/domain"
	apphttp "automag/internal/infra/http"
)

const recentMaterials = 100

//go:embed templates/*.html
var templateFS embed.FS

var templates = template.Must(template.ParseFS(templateFS, "templates/*.html"))

// Materials подмножество domain.MaterialRepo, нужное панели.
type Materials interface {
	ListRecent(ctx context.Context, limit uint64) ([]domain.StoredMaterial, error)
	Get(ctx context.Context, id int64) (domain.StoredMaterial, error)
	UpdateContent(ctx context.Context, id int64, title string, content []byte) error
}

// LogSource отдаёт последние строки лога.
type LogSource interface {
	String() string
}

// Handler обслуживает панель оператора.
type Handler struct {
	materials Materials
	ledger    domain.Ledger
	logs      LogSource
	session   *apphttp.Session
	accessKey string
	password  string
	log       zerolog.Logger
}

// NewHandler создаёт обработчики панели. Пароль совпадает с секретом подписи сессии.
func NewHandler(materials Materials, ledger domain.Ledger, logs LogSource, session *apphttp.Session, accessKey, password string, logger zerolog.Logger) *Handler {
	return &Handler{
		materials: materials,
		ledger:    ledger,
		logs:      logs,
		session:   session,
		accessKey: accessKey,
		password:  password,
		log:       logger,
	}
}

func (h *Handler) loginPath() string {
	return "/" + h.accessKey
}

// Register вешает маршруты панели на роутер.
func (h *Handler) Register(r chi.Router) {
	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, h.loginPath(), http.StatusFound)
	})
	r.Get("/{accessKey}", h.loginForm)
	r.Post("/{accessKey}", h.login)

	r.Group(func(r chi.Router) {
		r.Use(h.session.Require(h.loginPath()))
		r.Get("/dashboard", h.dashboard)
		r.Get("/edit_material/{id}", h.editForm)
		r.Post("/edit_material/{id}", h.edit)
	})
}

func (h *Handler) checkAccessKey(w http.ResponseWriter, r *http.Request) bool {
	if h.accessKey == "" || chi.URLParam(r, "accessKey") != h.accessKey {
		http.NotFound(w, r)
		return false
	}
	return true
}

func (h *Handler) loginForm(w http.ResponseWriter, r *http.Request) {
	if !h.checkAccessKey(w, r) {
		return
	}
	h.render(w, "login.html", nil)
}

func (h *Handler) login(w http.ResponseWriter, r *http.Request) {
	if !h.checkAccessKey(w, r) {
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, "Bad request.", http.StatusBadRequest)
		return
	}
	if h.password == "" || r.PostForm.Get("password") != h.password {
		h.log.Warn().Str("ip", r.RemoteAddr).Msg("dashboard: неверный пароль")
		http.Error(w, "Invalid password.", http.StatusUnauthorized)
		return
	}
	if err := h.session.Issue(w); err != nil {
		h.log.Error().Err(err).Msg("dashboard: не удалось выдать сессию")
		http.Error(w, "Internal error.", http.StatusInternalServerError)
		return
	}
	h.log.Info().Msg("dashboard: оператор вошёл")
	http.Redirect(w, r, "/dashboard", http.StatusFound)
}

type dashboardView struct {
	URLCount      int
	ProcessedURLs []string
	Materials     []domain.StoredMaterial
	Logs          string
}

func (h *Handler) dashboard(w http.ResponseWriter, r *http.Request) {
	urls, err := h.ledger.List(r.Context())
	if err != nil {
		h.log.Error().Err(err).Msg("dashboard: не удалось прочитать журнал ссылок")
		http.Error(w, "Internal error.", http.StatusInternalServerError)
		return
	}
	materials, err := h.materials.ListRecent(r.Context(), recentMaterials)
	if err != nil {
		h.log.Error().Err(err).Msg("dashboard: не удалось загрузить материалы")
		http.Error(w, "Internal error.", http.StatusInternalServerError)
		return
	}
	view := dashboardView{
		URLCount:      len(urls),
		ProcessedURLs: urls,
		Materials:     materials,
	}
	if h.logs != nil {
		view.Logs = h.logs.String()
	}
	h.render(w, "dashboard.html", view)
}

type editView struct {
	ID      int64
	Title   string
	Content string
}

func (h *Handler) editForm(w http.ResponseWriter, r *http.Request) {
	id, ok := materialID(w, r)
	if !ok {
		return
	}
	material, err := h.materials.Get(r.Context(), id)
	if errors.Is(err, domain.ErrNotFound) {
		http.NotFound(w, r)
		return
	}
	if err != nil {
		h.log.Error().Err(err).Int64("id", id).Msg("dashboard: не удалось загрузить материал")
		http.Error(w, "Internal error.", http.StatusInternalServerError)
		return
	}
	h.render(w, "edit_material.html", editView{
		ID:      material.ID,
		Title:   material.Title,
		Content: contentJSON(material.MaterialContent),
	})
}

func (h *Handler) edit(w http.ResponseWriter, r *http.Request) {
	id, ok := materialID(w, r)
	if !ok {
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, "Bad request.", http.StatusBadRequest)
		return
	}
	title := strings.TrimSpace(r.PostForm.Get("title"))
	content := []byte(strings.TrimSpace(r.PostForm.Get("content")))
	if !json.Valid(content) {
		http.Error(w, "Content must be valid JSON.", http.StatusBadRequest)
		return
	}

	err := h.materials.UpdateContent(r.Context(), id, title, content)
	if errors.Is(err, domain.ErrNotFound) {
		http.NotFound(w, r)
		return
	}
	if err != nil {
		h.log.Error().Err(err).Int64("id", id).Msg("dashboard: не удалось обновить материал")
		http.Error(w, "Internal error.", http.StatusInternalServerError)
		return
	}
	h.log.Info().Int64("id", id).Str("title", title).Msg("dashboard: материал обновлён")
	http.Redirect(w, r, "/dashboard", http.StatusFound)
}

func (h *Handler) render(w http.ResponseWriter, name string, data any) {
	var buf bytes.Buffer
	if err := templates.ExecuteTemplate(&buf, name, data); err != nil {
		h.log.Error().Err(err).Str("template", name).Msg("dashboard: ошибка шаблона")
		http.Error(w, "Internal error.", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = buf.WriteTo(w)
}

func materialID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		http.NotFound(w, r)
		return 0, false
	}
	return id, true
}

// contentJSON показывает material_content.content с отступами.
func contentJSON(material json.RawMessage) string {
	content := gjson.GetBytes(material, "content")
	if !content.Exists() {
		return "{}"
	}
	var out bytes.Buffer
	if err := json.Indent(&out, []byte(content.Raw), "", "  "); err != nil {
		return content.Raw
	}
	return out.String()
}
