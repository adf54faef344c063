package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/multierr"

	"ely.by/changeskin/internal/db"
	"ely.by/changeskin/internal/otel"
	"ely.by/changeskin/internal/profiles"
	"ely.by/changeskin/internal/skins"
	"ely.by/changeskin/internal/utils"
)

type NamesResolver interface {
	Resolve(ctx context.Context, name string) (uuid.UUID, error)
}

type PreferencesStore interface {
	GetPreference(ctx context.Context, playerId uuid.UUID) (*db.Preference, error)
	GetRecord(ctx context.Context, skinId int64) (*db.Record, error)
}

type SkinsService interface {
	EnsureSkin(ctx context.Context, playerId uuid.UUID, playerName string, pref *db.Preference) *db.Preference
	SkinByOwner(ctx context.Context, owner uuid.UUID) (*db.Record, error)
	SetSkin(ctx context.Context, invoker uuid.UUID, receiver uuid.UUID, record *db.Record, keepSkin bool) (*db.Preference, error)
	ResetSkin(ctx context.Context, receiver uuid.UUID) (*db.Preference, error)
	Invalidate(ctx context.Context, receiver uuid.UUID) (*db.Record, error)
}

func NewApi(resolver NamesResolver, store PreferencesStore, service SkinsService) (*Api, error) {
	metrics, err := newApiMetrics(otel.GetMeter())
	if err != nil {
		return nil, err
	}

	return &Api{
		NamesResolver:    resolver,
		PreferencesStore: store,
		SkinsService:     service,
		validator:        createValidator(),
		metrics:          metrics,
	}, nil
}

// Api exposes the names resolution, the skins and the players preferences to the platform
type Api struct {
	NamesResolver
	PreferencesStore
	SkinsService

	validator *validator.Validate
	metrics   *apiMetrics
}

func (a *Api) Handler() *mux.Router {
	router := mux.NewRouter().StrictSlash(true)
	router.HandleFunc("/uuids/{username}", a.getUuidHandler).Methods(http.MethodGet)
	router.HandleFunc("/skins/{uuid}", a.getSkinHandler).Methods(http.MethodGet)
	router.HandleFunc("/players/{uuid}/preference", a.getPreferenceHandler).Methods(http.MethodGet)
	router.HandleFunc("/players/{uuid}/ensure", a.postEnsureHandler).Methods(http.MethodPost)
	router.HandleFunc("/players/{uuid}/skin", a.putSkinHandler).Methods(http.MethodPut)
	router.HandleFunc("/players/{uuid}/skin", a.deleteSkinHandler).Methods(http.MethodDelete)
	router.HandleFunc("/players/{uuid}/invalidate", a.postInvalidateHandler).Methods(http.MethodPost)

	return router
}

func (a *Api) getUuidHandler(resp http.ResponseWriter, req *http.Request) {
	a.countRequest(req, "uuid")

	username := mux.Vars(req)["username"]
	id, err := a.Resolve(req.Context(), username)
	if errors.Is(err, profiles.ErrNotFound) {
		apiNotFound(resp, "There is no account with such name")
		return
	}

	if errors.Is(err, profiles.ErrRateLimited) {
		apiTooManyRequests(resp, "All upstream providers are rate limited, try again later")
		return
	}

	if err != nil {
		apiServerError(resp, req, fmt.Errorf("unable to resolve the name: %w", err))
		return
	}

	if id == uuid.Nil {
		// The upstream is unavailable right now, the result isn't known
		resp.WriteHeader(http.StatusNoContent)
		return
	}

	apiJson(resp, http.StatusOK, map[string]string{
		"id":   utils.MojangId(id),
		"name": username,
	})
}

func (a *Api) getSkinHandler(resp http.ResponseWriter, req *http.Request) {
	a.countRequest(req, "skin")

	owner, ok := a.parsePathUuid(resp, req)
	if !ok {
		return
	}

	record, err := a.SkinByOwner(req.Context(), owner)
	if err != nil {
		apiServerError(resp, req, fmt.Errorf("unable to get the skin: %w", err))
		return
	}

	if record == nil {
		resp.WriteHeader(http.StatusNoContent)
		return
	}

	apiJson(resp, http.StatusOK, serializeRecord(record))
}

func (a *Api) getPreferenceHandler(resp http.ResponseWriter, req *http.Request) {
	a.countRequest(req, "preference")

	playerId, ok := a.parsePathUuid(resp, req)
	if !ok {
		return
	}

	pref, err := a.GetPreference(req.Context(), playerId)
	if err != nil {
		apiServerError(resp, req, fmt.Errorf("unable to get the preference: %w", err))
		return
	}

	apiJson(resp, http.StatusOK, serializePreference(pref))
}

func (a *Api) postEnsureHandler(resp http.ResponseWriter, req *http.Request) {
	a.countRequest(req, "ensure")

	playerId, ok := a.parsePathUuid(resp, req)
	if !ok {
		return
	}

	if !a.parseForm(resp, req) {
		return
	}

	form := ensureForm{Username: req.Form.Get("username")}
	if v := validateForm(a.validator, form); v != nil {
		apiBadRequest(resp, v.Errors)
		return
	}

	pref, err := a.GetPreference(req.Context(), playerId)
	if err != nil {
		apiServerError(resp, req, fmt.Errorf("unable to get the preference: %w", err))
		return
	}

	pref = a.EnsureSkin(req.Context(), playerId, form.Username, pref)

	apiJson(resp, http.StatusOK, serializePreference(pref))
}

func (a *Api) putSkinHandler(resp http.ResponseWriter, req *http.Request) {
	a.countRequest(req, "set_skin")

	receiver, ok := a.parsePathUuid(resp, req)
	if !ok {
		return
	}

	if !a.parseForm(resp, req) {
		return
	}

	form := skinForm{
		Invoker:  req.Form.Get("invoker"),
		Owner:    req.Form.Get("owner"),
		SkinId:   req.Form.Get("skinId"),
		KeepSkin: req.Form.Get("keepSkin"),
	}
	if v := validateForm(a.validator, form); v != nil {
		apiBadRequest(resp, v.Errors)
		return
	}

	record, ok := a.findRecord(resp, req, form.Owner, form.SkinId)
	if !ok {
		return
	}

	invoker, _ := utils.ParseUuid(form.Invoker)
	keepSkin, _ := strconv.ParseBool(form.KeepSkin)
	pref, err := a.SetSkin(req.Context(), invoker, receiver, record, keepSkin)
	if err != nil {
		var cooldownErr *skins.CooldownError
		if errors.As(err, &cooldownErr) {
			resp.Header().Set("Retry-After", strconv.Itoa(int(cooldownErr.Left.Seconds())+1))
			apiTooManyRequests(resp, cooldownErr.Error())
			return
		}

		apiServerError(resp, req, fmt.Errorf("unable to set the skin: %w", err))
		return
	}

	apiJson(resp, http.StatusOK, serializePreference(pref))
}

func (a *Api) deleteSkinHandler(resp http.ResponseWriter, req *http.Request) {
	a.countRequest(req, "reset_skin")

	receiver, ok := a.parsePathUuid(resp, req)
	if !ok {
		return
	}

	_, err := a.ResetSkin(req.Context(), receiver)
	if err != nil {
		apiServerError(resp, req, fmt.Errorf("unable to reset the skin: %w", err))
		return
	}

	resp.WriteHeader(http.StatusNoContent)
}

func (a *Api) postInvalidateHandler(resp http.ResponseWriter, req *http.Request) {
	a.countRequest(req, "invalidate")

	receiver, ok := a.parsePathUuid(resp, req)
	if !ok {
		return
	}

	_, err := a.Invalidate(req.Context(), receiver)
	if errors.Is(err, skins.ErrNoSkin) {
		apiNotFound(resp, "The player has no skin to invalidate")
		return
	}

	if err != nil {
		apiServerError(resp, req, fmt.Errorf("unable to invalidate the skin: %w", err))
		return
	}

	resp.WriteHeader(http.StatusAccepted)
}

// findRecord loads the skin either by its storage id or by its owner. The form must be validated already
func (a *Api) findRecord(resp http.ResponseWriter, req *http.Request, rawOwner string, rawSkinId string) (*db.Record, bool) {
	var record *db.Record
	var err error
	if rawSkinId != "" {
		skinId, _ := strconv.ParseInt(rawSkinId, 10, 64)
		record, err = a.GetRecord(req.Context(), skinId)
	} else {
		owner, _ := utils.ParseUuid(rawOwner)
		record, err = a.SkinByOwner(req.Context(), owner)
	}

	if err != nil {
		apiServerError(resp, req, fmt.Errorf("unable to find the skin: %w", err))
		return nil, false
	}

	if record == nil {
		field := "owner"
		if rawSkinId != "" {
			field = "skinId"
		}

		apiBadRequest(resp, map[string][]string{
			field: {"The skin can't be found"},
		})

		return nil, false
	}

	return record, true
}

func (a *Api) parsePathUuid(resp http.ResponseWriter, req *http.Request) (uuid.UUID, bool) {
	id, err := utils.ParseUuid(mux.Vars(req)["uuid"])
	if err != nil {
		apiBadRequest(resp, map[string][]string{
			"uuid": {"uuid must be a valid UUID"},
		})

		return uuid.Nil, false
	}

	return id, true
}

func (a *Api) parseForm(resp http.ResponseWriter, req *http.Request) bool {
	err := req.ParseForm()
	if err != nil {
		apiBadRequest(resp, map[string][]string{
			"body": {"The body of the request must be a valid url-encoded string"},
		})

		return false
	}

	return true
}

func (a *Api) countRequest(req *http.Request, endpoint string) {
	a.metrics.Requests.Add(req.Context(), 1, metric.WithAttributes(attribute.String("endpoint", endpoint)))
}

func serializeRecord(record *db.Record) map[string]any {
	result := map[string]any{
		"id":        utils.MojangId(record.ProfileId()),
		"name":      record.ProfileName(),
		"skinId":    record.Id(),
		"timestamp": record.Timestamp(),
		"value":     record.EncodedValue(),
		"signature": record.Signature(),
	}

	return result
}

func serializePreference(pref *db.Preference) map[string]any {
	result := map[string]any{
		"id":       pref.Id(),
		"player":   utils.MojangId(pref.PlayerId()),
		"keepSkin": pref.KeepSkin(),
		"skin":     nil,
	}

	if target := pref.TargetSkin(); target != nil {
		result["skin"] = serializeRecord(target)
	}

	return result
}

func newApiMetrics(meter metric.Meter) (*apiMetrics, error) {
	m := &apiMetrics{}
	var errors, err error

	m.Requests, err = meter.Int64Counter("changeskin.api.request", metric.WithUnit("{request}"))
	errors = multierr.Append(errors, err)

	return m, errors
}

type apiMetrics struct {
	Requests metric.Int64Counter
}
