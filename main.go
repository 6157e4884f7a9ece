package main

import (
	"os"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/kataras/iris/v12"
	"github.com/kataras/iris/v12/middleware/jwt"

	"marketplace-server/routes"
	"marketplace-server/services"
	"marketplace-server/storage"
	"marketplace-server/utils"
)

func main() {
	godotenv.Load()
	storage.InitializeDB()
	storage.InitializeRedis()

	app := iris.New()
	app.Validator = validator.New()

	// CORS for the operator dashboard (http://localhost:3000)
	app.AllowMethods(iris.MethodOptions)
	app.UseRouter(func(ctx iris.Context) {
		ctx.Header("Access-Control-Allow-Origin", ctx.GetHeader("Origin"))
		ctx.Header("Vary", "Origin")
		ctx.Header("Access-Control-Allow-Credentials", "true")
		ctx.Header("Access-Control-Allow-Headers", "Authorization, Content-Type, X-Requested-With")
		ctx.Header("Access-Control-Allow-Methods", "GET,POST,PATCH,PUT,DELETE,OPTIONS")
		if ctx.Method() == iris.MethodOptions {
			ctx.StatusCode(iris.StatusNoContent)
			return
		}
		ctx.Next()
	})

	app.Use(iris.Compression)

	accessTokenVerifier := jwt.NewVerifier(jwt.HS256, []byte(os.Getenv("ACCESS_TOKEN_SECRET")))
	accessTokenVerifier.WithDefaultBlocklist()
	accessTokenVerifierMiddleware := accessTokenVerifier.Verify(func() interface{} {
		return new(utils.AccessToken)
	})

	refreshTokenVerifier := jwt.NewVerifier(jwt.HS256, []byte(os.Getenv("REFRESH_TOKEN_SECRET")))
	refreshTokenVerifier.WithDefaultBlocklist()
	refreshTokenVerifierMiddleware := refreshTokenVerifier.Verify(func() interface{} {
		return new(jwt.Claims)
	})

	refreshTokenVerifier.Extractors = append(refreshTokenVerifier.Extractors, func(ctx iris.Context) string {
		var tokenInput utils.RefreshTokenInput
		if err := ctx.ReadJSON(&tokenInput); err != nil {
			return ""
		}
		return tokenInput.RefreshToken
	})

	experienceStore := storage.NewExperienceStore(storage.DB)
	instanceStore := storage.NewInstanceStore(storage.DB)

	notificationService := services.NewNotificationService(storage.DB)
	experienceService := services.NewExperienceService(experienceStore)
	instanceService := services.NewInstanceService(instanceStore, experienceStore)

	experienceHandler := routes.NewExperienceHandler(experienceService)
	instanceHandler := routes.NewInstanceHandler(instanceService, notificationService)
	bookingHandler := routes.NewBookingHandler(storage.DB, instanceStore, experienceStore, notificationService)

	user := app.Party("/api/user")
	{
		user.Post("/register", routes.Register)
		user.Post("/login", routes.Login)
		user.Post("/refresh", refreshTokenVerifierMiddleware, utils.RefreshToken)
		user.Patch("/pushtoken", accessTokenVerifierMiddleware, routes.AlterPushToken)
	}

	experience := app.Party("/api/experience")
	{
		experience.Get("/", experienceHandler.ListPublic)
		experience.Get("/{id:uint}", experienceHandler.Get)
		experience.Get("/{id:uint}/instances", instanceHandler.ListAvailability)

		operator := experience.Party("/", accessTokenVerifierMiddleware, utils.OperatorOnlyMiddleware)
		operator.Post("/", experienceHandler.Create)
		operator.Get("/mine", experienceHandler.ListMine)
		operator.Patch("/{id:uint}", experienceHandler.Update)
		operator.Post("/{id:uint}/submit", experienceHandler.Submit)
		operator.Delete("/{id:uint}", experienceHandler.Archive)
		operator.Patch("/{id:uint}/instances/{date}", instanceHandler.Upsert)
		operator.Post("/{id:uint}/instances/{date}/cancel", instanceHandler.Cancel)
	}

	instances := app.Party("/api/instances")
	{
		instances.Get("/", instanceHandler.ListAvailability)
	}

	booking := app.Party("/api/booking", accessTokenVerifierMiddleware, utils.UserIDFromTokenMiddleware)
	{
		booking.Post("/", bookingHandler.Create)
		booking.Get("/mine", bookingHandler.ListMine)
		booking.Post("/{id:uint}/cancel", bookingHandler.Cancel)

		operator := booking.Party("/", utils.OperatorOnlyMiddleware)
		operator.Get("/received", bookingHandler.ListForOperator)
		operator.Post("/{id:uint}/confirm", bookingHandler.Confirm)
		operator.Post("/{id:uint}/decline", bookingHandler.Decline)
	}

	admin := app.Party("/api/admin", accessTokenVerifierMiddleware, utils.AdminOnlyMiddleware)
	{
		admin.Post("/experiences/{id:uint}/approve", experienceHandler.AdminApprove)
		admin.Post("/experiences/{id:uint}/reject", experienceHandler.AdminReject)
		admin.Patch("/experiences/{id:uint}/instances/{date}", instanceHandler.Upsert)
		admin.Post("/experiences/{id:uint}/instances/{date}/cancel", instanceHandler.AdminCancel)
	}

	app.Listen(":4000")
}
