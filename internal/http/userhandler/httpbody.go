package userhandler

type SetUsernameBody struct {
	Device string `json:"device" binding:"required"          example:"1f6c2a9e-device"`
	Name   string `json:"name"   binding:"required,username" example:"alice_01"`
} // @name SetUsernameRequest

type SendMessageBody struct {
	Device  string `json:"device"  binding:"required" example:"1f6c2a9e-device"`
	Room    string `json:"room"    binding:"required" example:"global"`
	Message string `json:"message" binding:"required" example:"hello"`
} // @name SendMessageRequest

type SuccessResponse struct {
	Success string `json:"success" example:"True"`
} // @name SuccessResponse

type OkResponse struct {
	Ok bool `json:"ok" example:"true"`
} // @name OkResponse

type ErrorResponse struct {
	Error string `json:"error"`
} // @name ErrorResponse
