package models

type SendOTPRequest struct {
	Method string `json:"method"` // sms, whatsapp or email
	Phone  string `json:"phone,omitempty"`
	Email  string `json:"email,omitempty"`
}

type VerifyOTPRequest struct {
	Phone string `json:"phone,omitempty"`
	Email string `json:"email,omitempty"`
	OTP   string `json:"otp"`
}

type FaceVerificationRequest struct {
	UserId              string `json:"user_id"`
	RegisteredFaceImage string `json:"registered_face_image"` // Base64 encoded image
	QueryFaceImage      string `json:"query_face_image"`      // Base64 encoded image
}

type VoiceVerificationRequest struct {
	UserId          string `json:"user_id"`
	RegisteredAudio string `json:"registered_audio"` // Base64 encoded audio
	QueryAudio      string `json:"query_audio"`      // Base64 encoded audio
}

type SendSMSRequest struct {
	Phone      string `json:"phone"`
	Message    string `json:"message"`
	SenderName string `json:"sender_name"`
}
