package dto

import commonDto "github.com/vargamihaly/bottlebuddy/pkg/dto"

type ListActivitiesQuery struct {
	commonDto.PageQuery
	UnreadOnly bool `form:"unread"`
}

type UnreadCountResponse struct {
	Count int64 `json:"count"`
}
