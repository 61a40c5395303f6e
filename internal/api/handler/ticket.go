package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/sanosuguru/go-train-ticket-lifecycle/internal/application"
	"github.com/sanosuguru/go-train-ticket-lifecycle/internal/command"
	"github.com/sanosuguru/go-train-ticket-lifecycle/internal/domain/ticket"
)

type TicketHandler struct {
	service TicketServiceInterface
}

func NewTicketHandler(s TicketServiceInterface) *TicketHandler {
	return &TicketHandler{service: s}
}

type PurchaseTicketRequest struct {
	Type        string    `json:"type" validate:"required" example:"highspeed"`
	Origin      string    `json:"origin" validate:"required" example:"Roma Termini"`
	Destination string    `json:"destination" validate:"required" example:"Milano Centrale"`
	TravelDate  time.Time `json:"travel_date" validate:"required"`
	DistanceKm  int       `json:"distance_km" validate:"gte=0" example:"500"`
}

type ReserveTicketRequest struct {
	PurchaseTicketRequest
	// 省略時は既定の有効期間（0は即時失効）
	ValidityMinutes *int `json:"validity_minutes,omitempty" validate:"omitempty,gte=0"`
}

type BatchPurchaseRequest struct {
	Tickets []PurchaseTicketRequest `json:"tickets" validate:"required,min=1,dive"`
}

type ModifyTicketRequest struct {
	Type        *string    `json:"type,omitempty"`
	Origin      *string    `json:"origin,omitempty"`
	Destination *string    `json:"destination,omitempty"`
	TravelDate  *time.Time `json:"travel_date,omitempty"`
	DistanceKm  *int       `json:"distance_km,omitempty" validate:"omitempty,gte=0"`
}

type TicketResponse struct {
	ID          string    `json:"id" example:"550e8400-e29b-41d4-a716-446655440000"`
	ClientID    string    `json:"client_id" example:"client-123"`
	Type        string    `json:"type" example:"highspeed"`
	Origin      string    `json:"origin" example:"Roma Termini"`
	Destination string    `json:"destination" example:"Milano Centrale"`
	TravelDate  time.Time `json:"travel_date"`
	DistanceKm  int       `json:"distance_km" example:"500"`
	Price       float64   `json:"price" example:"135.00"`
	State       string    `json:"state" example:"paid"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type UndoRedoResponse struct {
	Applied bool `json:"applied"`
}

type SweepResponse struct {
	ExpiredTicketIDs []string `json:"expired_ticket_ids"`
	Count            int      `json:"count"`
}

func toTicketResponse(t *ticket.Ticket) TicketResponse {
	return TicketResponse{
		ID: t.ID, ClientID: t.ClientID, Type: string(t.Type),
		Origin: t.Route.Origin, Destination: t.Route.Destination,
		TravelDate: t.TravelDate, DistanceKm: t.DistanceKm,
		Price: t.Price, State: string(t.State),
		CreatedAt: t.CreatedAt, UpdatedAt: t.UpdatedAt,
	}
}

func (r *PurchaseTicketRequest) toInput(clientID string) application.PurchaseInput {
	return application.PurchaseInput{
		ClientID:    clientID,
		Type:        ticket.Type(r.Type),
		Origin:      r.Origin,
		Destination: r.Destination,
		TravelDate:  r.TravelDate,
		DistanceKm:  r.DistanceKm,
	}
}

// toHTTPError はドメインエラーをHTTPステータスへ対応付ける
func toHTTPError(err error) error {
	switch {
	case errors.Is(err, ticket.ErrTicketNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case ticket.IsIllegalTransition(err), errors.Is(err, command.ErrNoCapacity):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case ticket.IsPricingError(err),
		errors.Is(err, ticket.ErrClientIDRequired),
		errors.Is(err, ticket.ErrOriginRequired),
		errors.Is(err, ticket.ErrDestinationRequired):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
}

func clientID(c echo.Context) (string, error) {
	id := c.Request().Header.Get("X-Client-ID")
	if id == "" {
		return "", echo.NewHTTPError(http.StatusUnauthorized, "クライアントIDが必要です")
	}
	return id, nil
}

// Purchase godoc
// @Summary チケットを購入
// @Description チケットを購入し、即時に支払い済み状態にします
// @Tags tickets
// @Accept json
// @Produce json
// @Param X-Client-ID header string true "クライアントID"
// @Param request body PurchaseTicketRequest true "購入情報"
// @Success 201 {object} TicketResponse
// @Failure 400 {object} map[string]string
// @Failure 401 {object} map[string]string
// @Failure 409 {object} map[string]string "座席の空きがない"
// @Router /tickets [post]
func (h *TicketHandler) Purchase(c echo.Context) error {
	cid, err := clientID(c)
	if err != nil {
		return err
	}
	var req PurchaseTicketRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "無効なリクエスト")
	}
	if err := c.Validate(&req); err != nil {
		return err
	}
	t, err := h.service.Purchase(c.Request().Context(), req.toInput(cid))
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusCreated, toTicketResponse(t))
}

// PurchaseBatch godoc
// @Summary チケットをまとめて購入
// @Description 全件成功するか、1件も購入されないかのいずれかになります
// @Tags tickets
// @Accept json
// @Produce json
// @Param X-Client-ID header string true "クライアントID"
// @Param request body BatchPurchaseRequest true "購入情報のリスト"
// @Success 201 {array} TicketResponse
// @Failure 400 {object} map[string]string
// @Failure 409 {object} map[string]string "座席の空きがない"
// @Router /tickets/batch [post]
func (h *TicketHandler) PurchaseBatch(c echo.Context) error {
	cid, err := clientID(c)
	if err != nil {
		return err
	}
	var req BatchPurchaseRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "無効なリクエスト")
	}
	if err := c.Validate(&req); err != nil {
		return err
	}
	inputs := make([]application.PurchaseInput, len(req.Tickets))
	for i := range req.Tickets {
		inputs[i] = req.Tickets[i].toInput(cid)
	}
	tickets, err := h.service.PurchaseBatch(c.Request().Context(), inputs)
	if err != nil {
		return toHTTPError(err)
	}
	resp := make([]TicketResponse, len(tickets))
	for i, t := range tickets {
		resp[i] = toTicketResponse(t)
	}
	return c.JSON(http.StatusCreated, resp)
}

// Reserve godoc
// @Summary チケットを仮押さえ
// @Description 期限付きで座席を仮押さえします（期限切れは自動的に失効）
// @Tags tickets
// @Accept json
// @Produce json
// @Param X-Client-ID header string true "クライアントID"
// @Param request body ReserveTicketRequest true "予約情報"
// @Success 201 {object} TicketResponse
// @Failure 400 {object} map[string]string
// @Failure 409 {object} map[string]string "座席の空きがない"
// @Router /tickets/reserve [post]
func (h *TicketHandler) Reserve(c echo.Context) error {
	cid, err := clientID(c)
	if err != nil {
		return err
	}
	var req ReserveTicketRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "無効なリクエスト")
	}
	if err := c.Validate(&req); err != nil {
		return err
	}
	validityMinutes := -1
	if req.ValidityMinutes != nil {
		validityMinutes = *req.ValidityMinutes
	}
	t, err := h.service.Reserve(c.Request().Context(), req.toInput(cid), validityMinutes)
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusCreated, toTicketResponse(t))
}

// Confirm godoc
// @Summary 予約を確定
// @Description 仮押さえ中の予約を支払い済みに確定します
// @Tags tickets
// @Produce json
// @Param id path string true "チケットID"
// @Success 200 {object} TicketResponse
// @Failure 404 {object} map[string]string
// @Failure 409 {object} map[string]string "確定できない状態"
// @Router /tickets/{id}/confirm [post]
func (h *TicketHandler) Confirm(c echo.Context) error {
	t, err := h.service.Confirm(c.Request().Context(), c.Param("id"))
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusOK, toTicketResponse(t))
}

// Modify godoc
// @Summary チケットを変更
// @Description 種別・路線・距離・乗車日を変更し、価格を再計算します
// @Tags tickets
// @Accept json
// @Produce json
// @Param id path string true "チケットID"
// @Param request body ModifyTicketRequest true "変更内容"
// @Success 200 {object} TicketResponse
// @Failure 400 {object} map[string]string
// @Failure 404 {object} map[string]string
// @Failure 409 {object} map[string]string "変更できない状態"
// @Router /tickets/{id} [patch]
func (h *TicketHandler) Modify(c echo.Context) error {
	var req ModifyTicketRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "無効なリクエスト")
	}
	if err := c.Validate(&req); err != nil {
		return err
	}
	in := application.ModifyInput{
		Origin:      req.Origin,
		Destination: req.Destination,
		TravelDate:  req.TravelDate,
		DistanceKm:  req.DistanceKm,
	}
	if req.Type != nil {
		tt := ticket.Type(*req.Type)
		in.Type = &tt
	}
	t, err := h.service.Modify(c.Request().Context(), c.Param("id"), in)
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusOK, toTicketResponse(t))
}

// Refund godoc
// @Summary チケットを払い戻し
// @Tags tickets
// @Produce json
// @Param id path string true "チケットID"
// @Success 200 {object} TicketResponse
// @Failure 404 {object} map[string]string
// @Failure 409 {object} map[string]string "払い戻しできない状態"
// @Router /tickets/{id}/refund [post]
func (h *TicketHandler) Refund(c echo.Context) error {
	t, err := h.service.Refund(c.Request().Context(), c.Param("id"))
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusOK, toTicketResponse(t))
}

// Use godoc
// @Summary チケットを使用
// @Tags tickets
// @Produce json
// @Param id path string true "チケットID"
// @Success 200 {object} TicketResponse
// @Failure 404 {object} map[string]string
// @Failure 409 {object} map[string]string "使用できない状態"
// @Router /tickets/{id}/use [post]
func (h *TicketHandler) Use(c echo.Context) error {
	t, err := h.service.Use(c.Request().Context(), c.Param("id"))
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusOK, toTicketResponse(t))
}

// Cancel godoc
// @Summary 予約をキャンセル
// @Description 仮押さえ中の予約を即時に失効させ、座席を解放します
// @Tags tickets
// @Produce json
// @Param id path string true "チケットID"
// @Success 200 {object} TicketResponse
// @Failure 404 {object} map[string]string
// @Failure 409 {object} map[string]string "キャンセルできない状態"
// @Router /tickets/{id}/cancel [post]
func (h *TicketHandler) Cancel(c echo.Context) error {
	t, err := h.service.Cancel(c.Request().Context(), c.Param("id"))
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusOK, toTicketResponse(t))
}

// GetByID godoc
// @Summary チケットを取得
// @Tags tickets
// @Produce json
// @Param id path string true "チケットID"
// @Success 200 {object} TicketResponse
// @Failure 404 {object} map[string]string
// @Router /tickets/{id} [get]
func (h *TicketHandler) GetByID(c echo.Context) error {
	t, err := h.service.GetTicket(c.Request().Context(), c.Param("id"))
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusOK, toTicketResponse(t))
}

// List godoc
// @Summary チケット一覧を取得
// @Description client_id クエリで絞り込みできます
// @Tags tickets
// @Produce json
// @Param client_id query string false "クライアントID"
// @Success 200 {array} TicketResponse
// @Router /tickets [get]
func (h *TicketHandler) List(c echo.Context) error {
	tickets := h.service.ListTickets(c.Request().Context(), c.QueryParam("client_id"))
	resp := make([]TicketResponse, len(tickets))
	for i, t := range tickets {
		resp[i] = toTicketResponse(t)
	}
	return c.JSON(http.StatusOK, resp)
}

// Undo godoc
// @Summary 直近の操作を取り消し
// @Description 取り消す操作がない場合は applied=false を返します
// @Tags operations
// @Produce json
// @Success 200 {object} UndoRedoResponse
// @Failure 409 {object} map[string]string "取り消せない操作"
// @Router /operations/undo [post]
func (h *TicketHandler) Undo(c echo.Context) error {
	applied, err := h.service.UndoLast(c.Request().Context())
	if err != nil {
		if errors.Is(err, command.ErrCannotUndo) {
			return echo.NewHTTPError(http.StatusConflict, err.Error())
		}
		return toHTTPError(err)
	}
	return c.JSON(http.StatusOK, UndoRedoResponse{Applied: applied})
}

// Redo godoc
// @Summary 直近に取り消した操作をやり直し
// @Tags operations
// @Produce json
// @Success 200 {object} UndoRedoResponse
// @Router /operations/redo [post]
func (h *TicketHandler) Redo(c echo.Context) error {
	applied, err := h.service.RedoLast(c.Request().Context())
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusOK, UndoRedoResponse{Applied: applied})
}

// Sweep godoc
// @Summary 期限切れ予約を失効
// @Description スイーパーを待たずに期限切れ予約を即時に失効させます
// @Tags operations
// @Produce json
// @Success 200 {object} SweepResponse
// @Router /operations/sweep [post]
func (h *TicketHandler) Sweep(c echo.Context) error {
	expired := h.service.SweepExpired(c.Request().Context())
	if expired == nil {
		expired = []string{}
	}
	return c.JSON(http.StatusOK, SweepResponse{ExpiredTicketIDs: expired, Count: len(expired)})
}
