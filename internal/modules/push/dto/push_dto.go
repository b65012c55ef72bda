package dto

type RegisterDeviceTokenRequest struct {
	Token    string `json:"token" binding:"required,max=255"`
	Platform string `json:"platform" binding:"omitempty,oneof=ios"`
}
