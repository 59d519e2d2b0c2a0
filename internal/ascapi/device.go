package ascapi

// Device is a registered device as reported by the devices resource.
type Device struct {
	ID          string
	Name        string
	UDID        string
	Platform    string
	Status      string
	DeviceClass string
	Model       string
	AddedDate   string
}

type deviceListResponse struct {
	Data  []deviceResource `json:"data"`
	Links struct {
		Self string `json:"self"`
		Next string `json:"next"`
	} `json:"links"`
	Meta struct {
		Paging struct {
			Total int `json:"total"`
			Limit int `json:"limit"`
		} `json:"paging"`
	} `json:"meta"`
}

type deviceResource struct {
	Type       string `json:"type"`
	ID         string `json:"id"`
	Attributes struct {
		Name        string `json:"name"`
		UDID        string `json:"udid"`
		Platform    string `json:"platform"`
		Status      string `json:"status"`
		DeviceClass string `json:"deviceClass"`
		Model       string `json:"model"`
		AddedDate   string `json:"addedDate"`
	} `json:"attributes"`
}

func (r deviceResource) device() Device {
	return Device{
		ID:          r.ID,
		Name:        r.Attributes.Name,
		UDID:        r.Attributes.UDID,
		Platform:    r.Attributes.Platform,
		Status:      r.Attributes.Status,
		DeviceClass: r.Attributes.DeviceClass,
		Model:       r.Attributes.Model,
		AddedDate:   r.Attributes.AddedDate,
	}
}
