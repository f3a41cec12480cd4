package order

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Additional-Code/gobady/internal/dto"
	"github.com/Additional-Code/gobady/internal/entity"
	"github.com/Additional-Code/gobady/pkg/errorbank"
)

type fakeService struct {
	received dto.CreateOrderRequest
	err      error
}

func (f *fakeService) Create(_ context.Context, req dto.CreateOrderRequest) (*entity.Order, error) {
	f.received = req
	if f.err != nil {
		return nil, f.err
	}
	return &entity.Order{ID: 7, Code: "04821", Email: req.Email, Total: decimal.RequireFromString("80.00")}, nil
}

func (f *fakeService) Get(_ context.Context, id int64) (*entity.Order, error) {
	if id != 7 {
		return nil, errorbank.NotFound("order not found")
	}
	return &entity.Order{ID: 7, Code: "04821"}, nil
}

func (f *fakeService) GetByCode(_ context.Context, code string) (*entity.Order, error) {
	if code != "04821" {
		return nil, errorbank.NotFound("order not found")
	}
	return &entity.Order{ID: 7, Code: code}, nil
}

func newServer(svc orderService) *echo.Echo {
	e := echo.New()
	Register(e, &Handler{svc: svc})
	return e
}

func serve(e *echo.Echo, method, target, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

type envelope struct {
	Success bool              `json:"success"`
	Data    dto.OrderResponse `json:"data"`
}

func TestCreateOrder(t *testing.T) {
	svc := &fakeService{}
	e := newServer(svc)

	rec := serve(e, http.MethodPost, "/orders", `{"name":"Ana","email":"ana@example.com","payment_method_id":1,"lines":[{"product_id":1,"quantity":10}]}`)

	require.Equal(t, http.StatusCreated, rec.Code)
	var body envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.True(t, body.Success)
	assert.Equal(t, "04821", body.Data.Code)
	assert.True(t, decimal.RequireFromString("80").Equal(body.Data.Total))
	require.Len(t, svc.received.Lines, 1)
	assert.Equal(t, 10, svc.received.Lines[0].Quantity)
}

func TestCreateOrderErrors(t *testing.T) {
	t.Run("malformed json", func(t *testing.T) {
		rec := serve(newServer(&fakeService{}), http.MethodPost, "/orders", `{"lines":`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("validation failure", func(t *testing.T) {
		svc := &fakeService{err: errorbank.BadRequest("insufficient stock for Widget; only 5 available.")}
		rec := serve(newServer(svc), http.MethodPost, "/orders", `{"lines":[]}`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Contains(t, rec.Body.String(), "insufficient stock for Widget; only 5 available.")
	})
}

func TestGetOrder(t *testing.T) {
	e := newServer(&fakeService{})

	cases := []struct {
		name   string
		target string
		status int
	}{
		{name: "by id", target: "/orders/7", status: http.StatusOK},
		{name: "missing id", target: "/orders/8", status: http.StatusNotFound},
		{name: "bad id", target: "/orders/abc", status: http.StatusBadRequest},
		{name: "by code", target: "/orders/codigo/04821", status: http.StatusOK},
		{name: "missing code", target: "/orders/codigo/99999", status: http.StatusNotFound},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := serve(e, http.MethodGet, tc.target, "")
			assert.Equal(t, tc.status, rec.Code)
			if tc.status == http.StatusOK {
				var body envelope
				require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
				assert.Equal(t, "04821", body.Data.Code)
			}
		})
	}
}
