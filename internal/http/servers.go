package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"ely.by/changeskin/internal/db"
	"ely.by/changeskin/internal/utils"
)

type ServersMessenger interface {
	SendSkinUpdate(ctx context.Context, target string, playerName string) error
	CheckPermissions(
		ctx context.Context,
		target string,
		invoker uuid.UUID,
		receiver uuid.UUID,
		skin *db.Record,
		skinPerm bool,
		op bool,
	) (bool, *db.Record, error)
}

func NewServersApi(messenger ServersMessenger, skins *Api, timeout time.Duration) *ServersApi {
	return &ServersApi{
		ServersMessenger: messenger,
		Skins:            skins,
		Timeout:          timeout,
		validator:        createValidator(),
	}
}

// ServersApi relays the requests of the platform to the game servers
type ServersApi struct {
	ServersMessenger
	Skins *Api
	// Timeout limits the wait for a response from a game server
	Timeout time.Duration

	validator *validator.Validate
}

func (s *ServersApi) Handler() *mux.Router {
	router := mux.NewRouter().StrictSlash(true)
	router.HandleFunc("/{server}/players/{username}/update", s.postUpdateHandler).Methods(http.MethodPost)
	router.HandleFunc("/{server}/permissions", s.postPermissionsHandler).Methods(http.MethodPost)

	return router
}

func (s *ServersApi) postUpdateHandler(resp http.ResponseWriter, req *http.Request) {
	vars := mux.Vars(req)
	err := s.SendSkinUpdate(req.Context(), vars["server"], vars["username"])
	if err != nil {
		apiServerError(resp, req, fmt.Errorf("unable to send the skin update: %w", err))
		return
	}

	resp.WriteHeader(http.StatusAccepted)
}

func (s *ServersApi) postPermissionsHandler(resp http.ResponseWriter, req *http.Request) {
	if !s.Skins.parseForm(resp, req) {
		return
	}

	form := permissionsForm{
		Invoker:  req.Form.Get("invoker"),
		Receiver: req.Form.Get("receiver"),
		Owner:    req.Form.Get("owner"),
		SkinId:   req.Form.Get("skinId"),
		SkinPerm: req.Form.Get("skinPerm"),
		Op:       req.Form.Get("op"),
	}
	if v := validateForm(s.validator, form); v != nil {
		apiBadRequest(resp, v.Errors)
		return
	}

	record, ok := s.Skins.findRecord(resp, req, form.Owner, form.SkinId)
	if !ok {
		return
	}

	invoker, _ := utils.ParseUuid(form.Invoker)
	receiver, _ := utils.ParseUuid(form.Receiver)
	skinPerm, _ := strconv.ParseBool(form.SkinPerm)
	op, _ := strconv.ParseBool(form.Op)

	ctx, cancel := context.WithTimeout(req.Context(), s.Timeout)
	defer cancel()

	allowed, skin, err := s.CheckPermissions(ctx, mux.Vars(req)["server"], invoker, receiver, record, skinPerm, op)
	if errors.Is(err, context.DeadlineExceeded) {
		apiJson(resp, http.StatusGatewayTimeout, map[string]any{
			"error": "The server hasn't responded in time",
		})
		return
	}

	if err != nil {
		apiServerError(resp, req, fmt.Errorf("unable to check the permissions: %w", err))
		return
	}

	result := map[string]any{
		"allowed": allowed,
		"skin":    nil,
	}
	if skin != nil {
		result["skin"] = serializeRecord(skin)
	}

	apiJson(resp, http.StatusOK, result)
}
