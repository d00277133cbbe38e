package serverutils

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"course-subscription-be/internal/pkg/logger"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret"

func newApp() *fiber.App {
	app := fiber.New()
	app.Use(ErrorHandlerMiddleware(logger.NewNopLogger()))
	app.Get("/me", JwtMiddleware(testSecret), func(ctx *fiber.Ctx) error {
		userId, err := UserIdFromCtx(ctx)
		if err != nil {
			return err
		}
		return ctx.JSON(SuccessResponse("ok", userId.String()))
	})
	app.Get("/boom", func(ctx *fiber.Ctx) error {
		return errors.New("db down")
	})
	app.Get("/teapot", func(ctx *fiber.Ctx) error {
		return fiber.NewError(fiber.StatusTeapot, "short and stout")
	})
	return app
}

func sign(t *testing.T, secret string, claims jwt.MapClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return token
}

func decode(t *testing.T, res *http.Response) BaseResponse {
	t.Helper()
	var body BaseResponse
	require.NoError(t, json.NewDecoder(res.Body).Decode(&body))
	return body
}

func TestJwtMiddleware(t *testing.T) {
	userId := uuid.New()
	valid := sign(t, testSecret, jwt.MapClaims{"user_id": userId.String(), "exp": time.Now().Add(time.Hour).Unix()})

	tests := []struct {
		name   string
		header string
		status int
	}{
		{name: "valid", header: "Bearer " + valid, status: fiber.StatusOK},
		{name: "missing", header: "", status: fiber.StatusUnauthorized},
		{name: "wrong secret", header: "Bearer " + sign(t, "other", jwt.MapClaims{"user_id": userId.String()}), status: fiber.StatusUnauthorized},
		{name: "expired", header: "Bearer " + sign(t, testSecret, jwt.MapClaims{"user_id": userId.String(), "exp": time.Now().Add(-time.Hour).Unix()}), status: fiber.StatusUnauthorized},
		{name: "no user claim", header: "Bearer " + sign(t, testSecret, jwt.MapClaims{"sub": "x"}), status: fiber.StatusUnauthorized},
		{name: "user claim not a uuid", header: "Bearer " + sign(t, testSecret, jwt.MapClaims{"user_id": "42"}), status: fiber.StatusUnauthorized},
	}

	app := newApp()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/me", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			res, err := app.Test(req)
			require.NoError(t, err)
			assert.Equal(t, tt.status, res.StatusCode)

			body := decode(t, res)
			if tt.status == fiber.StatusOK {
				assert.Equal(t, userId.String(), body.Data)
			} else {
				assert.False(t, body.Success)
			}
		})
	}
}

func TestErrorHandlerMiddleware(t *testing.T) {
	app := newApp()

	res, err := app.Test(httptest.NewRequest(http.MethodGet, "/boom", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusInternalServerError, res.StatusCode)
	assert.Equal(t, "Internal server error", decode(t, res).Message)

	res, err = app.Test(httptest.NewRequest(http.MethodGet, "/teapot", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusTeapot, res.StatusCode)
	assert.Equal(t, "short and stout", decode(t, res).Message)
}

func TestValidateRequest(t *testing.T) {
	type request struct {
		OrderId string `validate:"required,max=64"`
	}

	require.NoError(t, ValidateRequest(request{OrderId: "ORD-1"}))

	err := ValidateRequest(request{})
	var fiberErr *fiber.Error
	require.ErrorAs(t, err, &fiberErr)
	assert.Equal(t, fiber.StatusBadRequest, fiberErr.Code)
	assert.Contains(t, fiberErr.Message, "OrderId")
}
