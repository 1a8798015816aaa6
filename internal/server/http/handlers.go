package httpserver

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/and161185/econtract/internal/convert"
	"github.com/and161185/econtract/internal/errs"
	"github.com/and161185/econtract/internal/model"
	"github.com/and161185/econtract/internal/repository"
	"github.com/and161185/econtract/internal/service"
)

// DefaultMaxUpload bounds multipart upload bodies.
const DefaultMaxUpload int64 = 32 << 20

// Handler serves the contract API.
type Handler struct {
	contracts service.ContractService
	log       *zap.Logger
	maxUpload int64
}

// NewHandler constructs a Handler. A non-positive maxUpload uses DefaultMaxUpload.
func NewHandler(contracts service.ContractService, log *zap.Logger, maxUpload int64) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	if maxUpload <= 0 {
		maxUpload = DefaultMaxUpload
	}
	return &Handler{contracts: contracts, log: log.With(zap.String("component", "http")), maxUpload: maxUpload}
}

type signBody struct {
	PartyID        string `json:"partyId"`
	SignatureImage string `json:"signatureImage"`
	SignatureData  string `json:"signatureData"`
	DeviceInfo     string `json:"deviceInfo"`
}

type statusBody struct {
	Status string `json:"status"`
}

func (h *Handler) view(c *model.Contract) convert.Contract {
	return convert.ToContract(c, h.contracts.FullySigned(c))
}

func actor(c *gin.Context) string { return c.GetString(keyActor) }

func badRequest(c *gin.Context, err error) {
	fail(c, http.StatusBadRequest, CodeBadRequest, err.Error())
}

// List handles GET /contracts.
func (h *Handler) List(c *gin.Context) {
	var (
		f   repository.Filter
		err error
	)
	if v := c.Query("status"); v != "" {
		if f.Status, err = model.ParseStatus(v); err != nil {
			h.respondError(c, "list", err)
			return
		}
	}
	if v := c.Query("type"); v != "" {
		if f.Type, err = model.ParseType(v); err != nil {
			h.respondError(c, "list", err)
			return
		}
	}
	if f.Limit, err = intQuery(c, "limit"); err != nil {
		badRequest(c, err)
		return
	}
	if f.Offset, err = intQuery(c, "offset"); err != nil {
		badRequest(c, err)
		return
	}

	list, err := h.contracts.List(c.Request.Context(), f)
	if err != nil {
		h.respondError(c, "list", err)
		return
	}
	out := make([]convert.Contract, 0, len(list))
	for _, ct := range list {
		out = append(out, h.view(ct))
	}
	ok(c, http.StatusOK, out)
}

func intQuery(c *gin.Context, key string) (int, error) {
	v := c.Query(key)
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s: not a number", key)
	}
	return n, nil
}

// Get handles GET /contracts/:id.
func (h *Handler) Get(c *gin.Context) {
	ct, err := h.contracts.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, "get", err)
		return
	}
	ok(c, http.StatusOK, h.view(ct))
}

// Create handles POST /contracts.
func (h *Handler) Create(c *gin.Context) {
	var rec model.Record
	if err := c.ShouldBindJSON(&rec); err != nil {
		badRequest(c, fmt.Errorf("bad record: %w", err))
		return
	}
	ct, err := h.contracts.Create(c.Request.Context(), actor(c), rec)
	if err != nil {
		h.respondError(c, "create", err)
		return
	}
	ok(c, http.StatusCreated, h.view(ct))
}

// Sign handles POST /contracts/:id/sign. The address is the client IP as seen by gin.
func (h *Handler) Sign(c *gin.Context) {
	var body signBody
	if err := c.ShouldBindJSON(&body); err != nil {
		badRequest(c, fmt.Errorf("bad signature: %w", err))
		return
	}
	ct, err := h.contracts.Sign(c.Request.Context(), actor(c), c.Param("id"), service.SignRequest{
		PartyID:        body.PartyID,
		SignatureImage: body.SignatureImage,
		SignatureData:  body.SignatureData,
		IPAddress:      c.ClientIP(),
		DeviceInfo:     body.DeviceInfo,
	})
	if err != nil {
		h.respondError(c, "sign", err)
		return
	}
	ok(c, http.StatusOK, h.view(ct))
}

// UpdateStatus handles POST /contracts/:id/status.
func (h *Handler) UpdateStatus(c *gin.Context) {
	var body statusBody
	if err := c.ShouldBindJSON(&body); err != nil {
		badRequest(c, fmt.Errorf("bad status: %w", err))
		return
	}
	st, err := model.ParseStatus(body.Status)
	if err != nil {
		h.respondError(c, "update status", err)
		return
	}
	ct, err := h.contracts.UpdateStatus(c.Request.Context(), actor(c), c.Param("id"), st)
	if err != nil {
		h.respondError(c, "update status", err)
		return
	}
	ok(c, http.StatusOK, h.view(ct))
}

// AddParty handles POST /contracts/:id/parties.
func (h *Handler) AddParty(c *gin.Context) {
	var p model.Party
	if err := c.ShouldBindJSON(&p); err != nil {
		badRequest(c, fmt.Errorf("bad party: %w", err))
		return
	}
	ct, err := h.contracts.AddParty(c.Request.Context(), actor(c), c.Param("id"), p)
	if err != nil {
		h.respondError(c, "add party", err)
		return
	}
	ok(c, http.StatusCreated, h.view(ct))
}

// AddFile handles POST /contracts/:id/files. A multipart body with a "file"
// part is stored in object storage; a JSON body is a file record whose body
// lives elsewhere.
func (h *Handler) AddFile(c *gin.Context) {
	if strings.HasPrefix(c.ContentType(), "multipart/") {
		h.upload(c)
		return
	}
	var f model.File
	if err := c.ShouldBindJSON(&f); err != nil {
		badRequest(c, fmt.Errorf("bad file: %w", err))
		return
	}
	ct, err := h.contracts.AddFile(c.Request.Context(), actor(c), c.Param("id"), f)
	if err != nil {
		h.respondError(c, "add file", err)
		return
	}
	ok(c, http.StatusCreated, h.view(ct))
}

func (h *Handler) upload(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUpload)
	fh, err := c.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			fail(c, http.StatusRequestEntityTooLarge, CodeTooLarge,
				fmt.Sprintf("upload exceeds %d bytes", tooLarge.Limit))
			return
		}
		badRequest(c, fmt.Errorf("no file provided: %w", errs.ErrInvalidInput))
		return
	}
	body, err := fh.Open()
	if err != nil {
		h.respondError(c, "upload", err)
		return
	}
	defer body.Close()

	contentType := fh.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	primary, _ := strconv.ParseBool(c.PostForm("isPrimary"))
	ct, err := h.contracts.AttachUpload(c.Request.Context(), actor(c), c.Param("id"), service.Upload{
		Name:        fh.Filename,
		ContentType: contentType,
		Size:        fh.Size,
		Body:        body,
		Primary:     primary,
	})
	if err != nil {
		h.respondError(c, "upload", err)
		return
	}
	ok(c, http.StatusCreated, h.view(ct))
}

// FileLink handles GET /contracts/:id/files/:fileId/link.
func (h *Handler) FileLink(c *gin.Context) {
	link, err := h.contracts.FileLink(c.Request.Context(), c.Param("id"), c.Param("fileId"))
	if err != nil {
		h.respondError(c, "file link", err)
		return
	}
	ok(c, http.StatusOK, gin.H{"url": link})
}
