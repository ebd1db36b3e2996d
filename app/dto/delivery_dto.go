package dto

// BuyerDeliveryRequest is the storefront redirect a buyer lands on after paying
type BuyerDeliveryRequest struct {
	UniqueCode string `json:"uniquecode" validate:"required,max=128"`
}

// BuyerDeliveryResponse tells the buyer whether their eSIMs are ready and how to install them
type BuyerDeliveryResponse struct {
	TransactionCode    string               `json:"transaction_code"`
	Status             string               `json:"status"`
	Ready              bool                 `json:"ready"`
	PackageRef         string               `json:"package_ref"`
	Quantity           int                  `json:"quantity"`
	ManualInstallation string               `json:"manual_installation,omitempty"`
	QRCodeInstallation string               `json:"qrcode_installation,omitempty"`
	Sims               []ProvisionedUnitDTO `json:"sims"`
}
