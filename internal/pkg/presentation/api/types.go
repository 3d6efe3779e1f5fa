package api

import (
	"encoding/json"

	"github.com/labforge/equipment-mgmt/pkg/types"
)

type pagination struct {
	TotalRecords uint64  `json:"totalRecords"`
	Offset       *uint64 `json:"offset,omitempty"`
	Limit        *uint64 `json:"limit,omitempty"`
	Count        uint64  `json:"count"`
}

type ApiResponse struct {
	Success    bool        `json:"success"`
	Data       any         `json:"data"`
	Pagination *pagination `json:"pagination,omitempty"`
}

func (r ApiResponse) Byte() []byte {
	r.Success = true
	b, _ := json.Marshal(r)
	return b
}

func newApiResponse[T any](c types.Collection[T]) ApiResponse {
	return ApiResponse{
		Data: c.Data,
		Pagination: &pagination{
			TotalRecords: c.TotalCount,
			Offset:       &c.Offset,
			Limit:        &c.Limit,
			Count:        c.Count,
		},
	}
}
