package locations

import "strings"

// LocationForm is the create/update payload.
type LocationForm struct {
	Name    string `json:"name" validate:"required,max=200"`
	Address string `json:"address" validate:"omitempty,max=300"`
	City    string `json:"city" validate:"omitempty,max=100"`
	Country string `json:"country" validate:"omitempty,max=100"`
	Phone   string `json:"phone" validate:"omitempty,max=50"`
	Email   string `json:"email" validate:"omitempty,email,max=320"`
}

func (f LocationForm) toLocation() Location {
	return Location{
		Name:    f.Name,
		Address: f.Address,
		City:    f.City,
		Country: f.Country,
		Phone:   f.Phone,
		Email:   f.Email,
	}
}

func formFrom(l Location) LocationForm {
	return LocationForm{
		Name:    l.Name,
		Address: l.Address,
		City:    l.City,
		Country: l.Country,
		Phone:   l.Phone,
		Email:   l.Email,
	}
}

func normalize(l Location) Location {
	l.Name = strings.TrimSpace(l.Name)
	l.Address = strings.TrimSpace(l.Address)
	l.City = strings.TrimSpace(l.City)
	l.Country = strings.TrimSpace(l.Country)
	l.Phone = strings.TrimSpace(l.Phone)
	l.Email = strings.ToLower(strings.TrimSpace(l.Email))
	return l
}
