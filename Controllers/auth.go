package Controllers

import (
	"net/http"

	"ArteryPulse/Models"
	"ArteryPulse/Utils/Logger"
	"ArteryPulse/Utils/Token"

	"github.com/gin-gonic/gin"
)

func CurrentUser(c *gin.Context) {
	user_id, err := Token.ExtractTokenID(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	user, err := Models.GetUserByID(user_id)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var output struct {
		ID       uint   `json:"ID"`
		Username string `json:"username"`
		FullName string `json:"full_name"`
	}
	output.ID = user.ID
	output.Username = user.Username
	output.FullName = user.FullName
	c.JSON(http.StatusOK, gin.H{"message": "success", "data": output})
}

type LoginInput struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

func Login(c *gin.Context) {
	var input LoginInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	_, token, err := Models.LoginCheck(input.Username, input.Password)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "username or password is incorrect."})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Login Successful", "jwt": token})
}

type RegisterInput struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required,min=6"`
	FullName string `json:"full_name"`
}

func Register(c *gin.Context) {
	var input RegisterInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	user := Models.User{
		Username: input.Username,
		Password: input.Password,
		FullName: input.FullName,
	}
	if _, err := user.SaveUser(); err != nil {
		Logger.Log.Warnw("register failed", "username", input.Username, "error", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "Failed To Register User"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": "validated"})
}

// SaveFcmToken registers a push token. The caller may be signed in via the
// usual token; anonymous tokens are stored against user 0.
func SaveFcmToken(c *gin.Context) {
	var input struct {
		Token string `json:"token" binding:"required"`
	}
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	user_id, err := Token.ExtractTokenID(c)
	if err != nil {
		user_id = 0
	}
	if err := Models.SaveDeviceToken(user_id, input.Token); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Token saved"})
}

func DeleteUser(c *gin.Context) {
	user_id, err := Token.ExtractTokenID(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := Models.DB.Unscoped().Delete(&Models.DeviceToken{}, "user_id = ?", user_id).Error; err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := Models.DB.Unscoped().Delete(&Models.User{}, user_id).Error; err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Account Deleted Successfully"})
}
