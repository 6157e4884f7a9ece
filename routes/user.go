package routes

import (
	"encoding/json"
	"strings"

	"github.com/kataras/iris/v12"
	jsonWT "github.com/kataras/iris/v12/middleware/jwt"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/datatypes"

	"marketplace-server/models"
	"marketplace-server/storage"
	"marketplace-server/utils"
)

type RegisterUserInput struct {
	FirstName   string `json:"firstName" validate:"required,max=256"`
	LastName    string `json:"lastName" validate:"required,max=256"`
	Email       string `json:"email" validate:"required,email"`
	PhoneNumber string `json:"phoneNumber"`
	Password    string `json:"password" validate:"required,min=8,max=256"`
	Role        string `json:"role" validate:"omitempty,oneof=explorer operator"`
	CompanyName string `json:"companyName"`
}

type LoginUserInput struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

func Register(ctx iris.Context) {
	var input RegisterUserInput
	if err := ctx.ReadJSON(&input); err != nil {
		utils.HandleValidationErrors(err, ctx)
		return
	}

	email := strings.ToLower(input.Email)

	var existing models.User
	if err := storage.DB.Where("email = ?", email).First(&existing).Error; err == nil {
		utils.JSONError(ctx, iris.StatusConflict, "conflict", "An account with this email already exists")
		return
	}

	if input.PhoneNumber != "" && !utils.ValidatePhoneNumber(input.PhoneNumber) {
		utils.JSONError(ctx, iris.StatusBadRequest, "validation_error", "Invalid phone number")
		return
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(input.Password), bcrypt.DefaultCost)
	if err != nil {
		utils.CreateInternalServerError(ctx)
		return
	}

	role := input.Role
	if role == "" {
		role = models.RoleExplorer
	}

	user := models.User{
		FirstName:   input.FirstName,
		LastName:    input.LastName,
		Email:       email,
		PhoneNumber: utils.NormalizePhoneNumber(input.PhoneNumber),
		Password:    string(hashed),
		Role:        role,
		CompanyName: input.CompanyName,
	}

	if err := storage.DB.Create(&user).Error; err != nil {
		utils.CreateInternalServerError(ctx)
		return
	}

	tokenPair, err := utils.CreateTokenPair(user.ID)
	if err != nil {
		utils.CreateInternalServerError(ctx)
		return
	}

	ctx.JSON(iris.Map{
		"user":         user,
		"accessToken":  string(tokenPair.AccessToken),
		"refreshToken": string(tokenPair.RefreshToken),
	})
}

func Login(ctx iris.Context) {
	var input LoginUserInput
	if err := ctx.ReadJSON(&input); err != nil {
		utils.HandleValidationErrors(err, ctx)
		return
	}

	var user models.User
	if err := storage.DB.Where("email = ?", strings.ToLower(input.Email)).First(&user).Error; err != nil {
		utils.JSONError(ctx, iris.StatusUnauthorized, "unauthorized", "Invalid email or password")
		return
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(input.Password)); err != nil {
		utils.JSONError(ctx, iris.StatusUnauthorized, "unauthorized", "Invalid email or password")
		return
	}

	tokenPair, err := utils.CreateTokenPair(user.ID)
	if err != nil {
		utils.CreateInternalServerError(ctx)
		return
	}

	ctx.JSON(iris.Map{
		"user":         user,
		"accessToken":  string(tokenPair.AccessToken),
		"refreshToken": string(tokenPair.RefreshToken),
	})
}

type pushTokenInput struct {
	PushToken           string `json:"pushToken" validate:"required"`
	AllowsNotifications *bool  `json:"allowsNotifications"`
}

// AlterPushToken registers or removes an Expo push token for the caller.
func AlterPushToken(ctx iris.Context) {
	claims := jsonWT.Get(ctx).(*utils.AccessToken)

	var input pushTokenInput
	if err := ctx.ReadJSON(&input); err != nil {
		utils.HandleValidationErrors(err, ctx)
		return
	}

	var user models.User
	if err := storage.DB.First(&user, claims.ID).Error; err != nil {
		utils.CreateNotFound(ctx)
		return
	}

	tokens := user.PushTokenList()
	found := false
	for _, t := range tokens {
		if t == input.PushToken {
			found = true
			break
		}
	}
	if !found {
		tokens = append(tokens, input.PushToken)
	}

	raw, err := jsonMarshalTokens(tokens)
	if err != nil {
		utils.CreateInternalServerError(ctx)
		return
	}
	user.PushTokens = raw
	if input.AllowsNotifications != nil {
		user.AllowsNotifications = input.AllowsNotifications
	}

	if err := storage.DB.Save(&user).Error; err != nil {
		utils.CreateInternalServerError(ctx)
		return
	}

	ctx.JSON(iris.Map{"success": true})
}

func jsonMarshalTokens(tokens []string) (datatypes.JSON, error) {
	b, err := json.Marshal(tokens)
	if err != nil {
		return nil, err
	}
	return datatypes.JSON(b), nil
}
