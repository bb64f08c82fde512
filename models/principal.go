package models

import (
	"strings"
	"time"

	"github.com/mmdatafocus/batchtrace_backend/utils"
)

// Manufacturer ids are short codes such as MFG001; they appear inside product lot numbers.
type Manufacturer struct {
	ID        string    `gorm:"primaryKey;size:20" json:"id"`
	Name      string    `gorm:"size:100;not null" json:"name"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}

type Supplier struct {
	ID        int       `gorm:"primary_key" json:"id"`
	Name      string    `gorm:"size:100;not null" json:"name"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}

type NewManufacturer struct {
	ID   string `json:"id" validate:"required,alphanum,max=20"`
	Name string `json:"name" validate:"required,max=100"`
}

type NewSupplier struct {
	// ID is optional; zero lets the store assign one.
	ID   int    `json:"id" validate:"gte=0"`
	Name string `json:"name" validate:"required,max=100"`
}

func (input *NewManufacturer) validate() error {
	input.ID = strings.TrimSpace(input.ID)
	input.Name = strings.TrimSpace(input.Name)
	if err := utils.ValidateStruct(input); err != nil {
		return NewInvalidInput(err.Error())
	}
	return nil
}

func (input *NewSupplier) validate() error {
	input.Name = strings.TrimSpace(input.Name)
	if err := utils.ValidateStruct(input); err != nil {
		return NewInvalidInput(err.Error())
	}
	return nil
}

func (input *NewManufacturer) ToModel() (*Manufacturer, error) {
	if err := input.validate(); err != nil {
		return nil, err
	}
	return &Manufacturer{ID: input.ID, Name: input.Name}, nil
}

func (input *NewSupplier) ToModel() (*Supplier, error) {
	if err := input.validate(); err != nil {
		return nil, err
	}
	return &Supplier{ID: input.ID, Name: input.Name}, nil
}
