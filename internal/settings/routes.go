package settings

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/airmash-refugees/airmash-services/pkg/tokenverifier"
)

// maxDocumentBytes caps an uploaded settings document.
const maxDocumentBytes = 1024

// restrictedKeys never enter the settings store: identity data lives in the
// token payload and the ledger, not in a player-writable document.
var restrictedKeys = []string{"clienttoken", "identityprovider", "loginname", "playerid"}

// Service serves per-player settings for holders of a settings-purpose token.
type Service struct {
	store  Store
	logger *zap.Logger
}

// NewService constructs the settings HTTP service.
func NewService(store Store, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{store: store, logger: logger}
}

// MountSettingsRoutes registers the settings routes behind token verification.
func MountSettingsRoutes(router *gin.Engine, service *Service, verifier *tokenverifier.Verifier) {
	authorized := router.Group("/", verifier.GinMiddleware("settings", ""))
	authorized.GET("", service.handleGet)
	authorized.POST("", service.handlePut)
}

func (service *Service) handleGet(contextGin *gin.Context) {
	payload := contextGin.MustGet(tokenverifier.DefaultContextKey).(tokenverifier.Payload)

	document, getErr := service.store.GetSettings(contextGin.Request.Context(), payload.UID)
	if getErr != nil {
		service.logger.Error("settings read failed",
			zap.String("code", "settings.get"),
			zap.String("user_id", payload.UID),
			zap.Error(getErr))
		contextGin.JSON(http.StatusInternalServerError, gin.H{"result": 0})
		return
	}
	filtered, filterErr := filterDocument([]byte(document))
	if filterErr != nil {
		// A corrupt stored document degrades to empty rather than locking
		// the player out of their settings.
		filtered = []byte("{}")
	}
	contextGin.Data(http.StatusOK, "application/json; charset=utf-8", filtered)
}

func (service *Service) handlePut(contextGin *gin.Context) {
	payload := contextGin.MustGet(tokenverifier.DefaultContextKey).(tokenverifier.Payload)

	body, readErr := io.ReadAll(io.LimitReader(contextGin.Request.Body, maxDocumentBytes+1))
	if readErr != nil || len(body) > maxDocumentBytes {
		contextGin.JSON(http.StatusBadRequest, gin.H{"result": 0})
		return
	}
	filtered, filterErr := filterDocument(body)
	if filterErr != nil {
		contextGin.JSON(http.StatusBadRequest, gin.H{"result": 0})
		return
	}
	if putErr := service.store.PutSettings(contextGin.Request.Context(), payload.UID, string(filtered)); putErr != nil {
		service.logger.Error("settings write failed",
			zap.String("code", "settings.put"),
			zap.String("user_id", payload.UID),
			zap.Error(putErr))
		contextGin.JSON(http.StatusInternalServerError, gin.H{"result": 0})
		return
	}
	contextGin.JSON(http.StatusOK, gin.H{"result": 1})
}

// filterDocument parses a JSON object, strips the restricted keys, and
// re-serializes it. Empty input is an empty object.
func filterDocument(raw []byte) ([]byte, error) {
	if len(raw) == 0 {
		return []byte("{}"), nil
	}
	var document map[string]json.RawMessage
	if unmarshalErr := json.Unmarshal(raw, &document); unmarshalErr != nil {
		return nil, unmarshalErr
	}
	for _, key := range restrictedKeys {
		delete(document, key)
	}
	filtered, marshalErr := json.Marshal(document)
	if marshalErr != nil {
		return nil, marshalErr
	}
	return filtered, nil
}
