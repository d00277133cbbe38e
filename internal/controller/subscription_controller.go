package controller

import (
	"errors"

	"course-subscription-be/internal/dto"
	"course-subscription-be/internal/entity"
	"course-subscription-be/internal/pkg/serverutils"
	"course-subscription-be/internal/service"

	"github.com/gofiber/fiber/v2"
)

type ISubscriptionController interface {
	RegisterRoutes(r fiber.Router, auth fiber.Handler)
	InitMerchant(ctx *fiber.Ctx) error
	InitCrypto(ctx *fiber.Ctx) error
	GetStatus(ctx *fiber.Ctx) error
	VerifyPayment(ctx *fiber.Ctx) error
	ConfirmVerification(ctx *fiber.Ctx) error
	GetPendingPayments(ctx *fiber.Ctx) error
	CancelSubscription(ctx *fiber.Ctx) error
	GetVerificationHistory(ctx *fiber.Ctx) error
}

type subscriptionController struct {
	service service.ISubscriptionService
}

func NewSubscriptionController(service service.ISubscriptionService) ISubscriptionController {
	return &subscriptionController{service: service}
}

func (c *subscriptionController) RegisterRoutes(r fiber.Router, auth fiber.Handler) {
	h := r.Group("/subscription", auth)
	h.Post("/merchant/init", c.InitMerchant)
	h.Post("/crypto/init", c.InitCrypto)
	h.Get("/status", c.GetStatus)
	h.Post("/verify-payment", c.VerifyPayment)
	h.Post("/confirm-verification", c.ConfirmVerification)
	h.Get("/pending-payments", c.GetPendingPayments)
	h.Post("/cancel", c.CancelSubscription)
	h.Get("/verification-history", c.GetVerificationHistory)
}

func (c *subscriptionController) InitMerchant(ctx *fiber.Ctx) error {
	userId, err := serverutils.UserIdFromCtx(ctx)
	if err != nil {
		return err
	}

	var req dto.MerchantInitRequest
	if len(ctx.Body()) > 0 {
		if err := ctx.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
		}
	}
	if err := serverutils.ValidateRequest(req); err != nil {
		return err
	}

	res, err := c.service.InitMerchantPayment(ctx.UserContext(), userId, &req)
	if err != nil {
		return initError(err)
	}
	return ctx.JSON(serverutils.SuccessResponse("Checkout created", res))
}

func (c *subscriptionController) InitCrypto(ctx *fiber.Ctx) error {
	userId, err := serverutils.UserIdFromCtx(ctx)
	if err != nil {
		return err
	}

	var req dto.CryptoInitRequest
	if len(ctx.Body()) > 0 {
		if err := ctx.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
		}
	}
	if err := serverutils.ValidateRequest(req); err != nil {
		return err
	}

	res, err := c.service.InitCryptoPayment(ctx.UserContext(), userId, &req)
	if err != nil {
		return initError(err)
	}
	return ctx.JSON(serverutils.SuccessResponse("Crypto payment created", res))
}

func initError(err error) error {
	if errors.Is(err, service.ErrPaymentsNotConfigured) {
		return fiber.NewError(fiber.StatusServiceUnavailable, "This payment method is not available right now")
	}
	return err
}

func (c *subscriptionController) GetStatus(ctx *fiber.Ctx) error {
	userId, err := serverutils.UserIdFromCtx(ctx)
	if err != nil {
		return err
	}

	res, err := c.service.GetStatus(ctx.UserContext(), userId)
	if err != nil {
		return err
	}
	return ctx.JSON(serverutils.SuccessResponse("Subscription status", res))
}

func (c *subscriptionController) VerifyPayment(ctx *fiber.Ctx) error {
	userId, err := serverutils.UserIdFromCtx(ctx)
	if err != nil {
		return err
	}

	var req dto.VerifyPaymentRequest
	if err := ctx.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
	}
	if err := serverutils.ValidateRequest(req); err != nil {
		return err
	}

	result, err := c.service.VerifyPayment(ctx.UserContext(), userId, &req)
	if err != nil {
		return err
	}
	return writeVerification(ctx, result)
}

func (c *subscriptionController) ConfirmVerification(ctx *fiber.Ctx) error {
	userId, err := serverutils.UserIdFromCtx(ctx)
	if err != nil {
		return err
	}

	var req dto.ConfirmVerificationRequest
	if err := ctx.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
	}
	if err := serverutils.ValidateRequest(req); err != nil {
		return err
	}

	result, err := c.service.ConfirmVerification(ctx.UserContext(), userId, &req)
	if err != nil {
		return err
	}
	return writeVerification(ctx, result)
}

// writeVerification answers 200 for success, needs-confirmation and a
// declined confirmation, and the code's status for typed failures.
func writeVerification(ctx *fiber.Ctx, result *entity.VerificationResult) error {
	status := fiber.StatusOK
	if code := result.ErrorCode(); code != "" {
		status = code.HTTPStatus()
	}
	return ctx.Status(status).JSON(service.ToVerificationResponse(result))
}

func (c *subscriptionController) GetPendingPayments(ctx *fiber.Ctx) error {
	userId, err := serverutils.UserIdFromCtx(ctx)
	if err != nil {
		return err
	}

	res, err := c.service.GetPendingPayments(ctx.UserContext(), userId)
	if err != nil {
		return err
	}
	return ctx.JSON(serverutils.SuccessResponse("Pending payments", res))
}

func (c *subscriptionController) CancelSubscription(ctx *fiber.Ctx) error {
	userId, err := serverutils.UserIdFromCtx(ctx)
	if err != nil {
		return err
	}

	var req dto.CancelSubscriptionRequest
	if len(ctx.Body()) > 0 {
		if err := ctx.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
		}
	}
	if err := serverutils.ValidateRequest(req); err != nil {
		return err
	}

	res, err := c.service.CancelSubscription(ctx.UserContext(), userId, req.Reason)
	if err != nil {
		if errors.Is(err, service.ErrNoActiveSubscription) {
			return fiber.NewError(fiber.StatusNotFound, "No active subscription to cancel")
		}
		return err
	}
	return ctx.JSON(serverutils.SuccessResponse("Subscription canceled. Access continues until the end of the current period.", res))
}

func (c *subscriptionController) GetVerificationHistory(ctx *fiber.Ctx) error {
	userId, err := serverutils.UserIdFromCtx(ctx)
	if err != nil {
		return err
	}

	res, err := c.service.GetVerificationHistory(ctx.UserContext(), userId)
	if err != nil {
		return err
	}
	return ctx.JSON(serverutils.SuccessResponse("Verification history", res))
}
