package carrier

import (
	"context"
	"net/http"
	"net/url"
	"strconv"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/teakspice/storefront/internal/domain/order"
	"github.com/teakspice/storefront/internal/domain/payment"
)

const orderDateLayout = "2006-01-02 15:04"

// CreateOrder registers an ad-hoc order with the carrier.
func (c *Client) CreateOrder(ctx context.Context, req order.ShipmentRequest) (*order.CarrierOrder, error) {
	data, err := c.call(ctx, "create_order", http.MethodPost, "/v1/external/orders/create/adhoc", encodeOrder(req))
	if err != nil {
		return nil, err
	}
	return parseCreatedOrder(data)
}

func encodeOrder(req order.ShipmentRequest) []byte {
	o := req.Order
	a := o.ShippingAddress

	method := "Prepaid"
	if o.Payment.Method == payment.MethodCOD {
		method = "COD"
	}
	weight := decimal.Zero
	for _, it := range o.Items {
		unit := it.WeightKg
		if !unit.IsPositive() {
			unit = req.DefaultWeightKg
		}
		weight = weight.Add(unit.Mul(decimal.NewFromInt(int64(it.Quantity))))
	}
	if !weight.IsPositive() {
		weight = req.DefaultWeightKg
	}
	email := a.Email
	if email == "" {
		email = o.Email
	}

	str := func(e *jx.Encoder, k, v string) { e.Field(k, func(e *jx.Encoder) { e.Str(v) }) }
	num := func(e *jx.Encoder, k string, v decimal.Decimal) {
		e.Field(k, func(e *jx.Encoder) { e.Num(jx.Num(v.String())) })
	}

	var e jx.Encoder
	e.Obj(func(e *jx.Encoder) {
		str(e, "order_id", o.ID)
		str(e, "order_date", o.CreatedAt.Format(orderDateLayout))
		str(e, "pickup_location", req.Warehouse.PickupLocation)
		str(e, "billing_customer_name", a.FullName)
		str(e, "billing_last_name", "")
		str(e, "billing_address", a.Line1)
		str(e, "billing_address_2", a.Line2)
		str(e, "billing_city", a.City)
		str(e, "billing_pincode", a.Pincode)
		str(e, "billing_state", a.State)
		str(e, "billing_country", a.Country)
		str(e, "billing_email", email)
		str(e, "billing_phone", a.Phone)
		e.Field("shipping_is_billing", func(e *jx.Encoder) { e.Bool(true) })
		e.Field("order_items", func(e *jx.Encoder) {
			e.Arr(func(e *jx.Encoder) {
				for _, it := range o.Items {
					e.Obj(func(e *jx.Encoder) {
						str(e, "name", it.ProductName)
						sku := it.SKU
						if sku == "" {
							sku = it.VariantID
						}
						str(e, "sku", sku)
						e.Field("units", func(e *jx.Encoder) { e.Int(it.Quantity) })
						num(e, "selling_price", it.PriceAtOrder)
					})
				}
			})
		})
		str(e, "payment_method", method)
		num(e, "shipping_charges", o.ShippingFee)
		num(e, "total_discount", o.DiscountAmount)
		num(e, "sub_total", o.TotalAmount)
		num(e, "length", req.Parcel.LengthCm)
		num(e, "breadth", req.Parcel.BreadthCm)
		num(e, "height", req.Parcel.HeightCm)
		num(e, "weight", weight)
	})
	return e.Bytes()
}

// AssignAWB assigns a tracking number. A zero courierID lets the carrier
// choose.
func (c *Client) AssignAWB(ctx context.Context, shipmentID string, courierID int) (*order.AWB, error) {
	var e jx.Encoder
	e.Obj(func(e *jx.Encoder) {
		e.Field("shipment_id", func(e *jx.Encoder) { e.Str(shipmentID) })
		if courierID != 0 {
			e.Field("courier_id", func(e *jx.Encoder) { e.Int(courierID) })
		}
	})
	data, err := c.call(ctx, "assign_awb", http.MethodPost, "/v1/external/courier/assign/awb", e.Bytes())
	if err != nil {
		return nil, err
	}
	awb, err := parseAWB(data)
	if err != nil {
		return nil, errors.Wrap(err, "assign_awb")
	}
	return awb, nil
}

func shipmentIDs(shipmentID string) []byte {
	var e jx.Encoder
	e.Obj(func(e *jx.Encoder) {
		e.Field("shipment_id", func(e *jx.Encoder) {
			e.Arr(func(e *jx.Encoder) { e.Str(shipmentID) })
		})
	})
	return e.Bytes()
}

// GenerateLabel returns the label URL, or "" when the carrier fails.
func (c *Client) GenerateLabel(ctx context.Context, shipmentID string) string {
	data, err := c.call(ctx, "generate_label", http.MethodPost, "/v1/external/courier/generate/label", shipmentIDs(shipmentID))
	if err != nil {
		zctx.From(ctx).Warn("Generate label", zap.String("shipment_id", shipmentID), zap.Error(err))
		return ""
	}
	return parseLabel(data)
}

// SchedulePickup requests a courier pickup and reports whether it was
// scheduled.
func (c *Client) SchedulePickup(ctx context.Context, shipmentID string) bool {
	data, err := c.call(ctx, "schedule_pickup", http.MethodPost, "/v1/external/courier/generate/pickup", shipmentIDs(shipmentID))
	if err != nil {
		zctx.From(ctx).Warn("Schedule pickup", zap.String("shipment_id", shipmentID), zap.Error(err))
		return false
	}
	return parsePickup(data)
}

// TrackShipment returns the current tracking view, or nil when the carrier
// cannot be reached or the response cannot be read.
func (c *Client) TrackShipment(ctx context.Context, awb string) *order.Tracking {
	lg := zctx.From(ctx).With(zap.String("awb", awb))
	data, err := c.call(ctx, "track", http.MethodGet, "/v1/external/courier/track/awb/"+url.PathEscape(awb), nil)
	if err != nil {
		lg.Warn("Track shipment", zap.Error(err))
		return nil
	}
	tr, err := parseTracking(data)
	if err != nil {
		lg.Warn("Parse tracking", zap.Error(err))
		return nil
	}
	return tr
}

// CancelShipment cancels a carrier order.
func (c *Client) CancelShipment(ctx context.Context, carrierOrderID string) error {
	var e jx.Encoder
	e.Obj(func(e *jx.Encoder) {
		e.Field("ids", func(e *jx.Encoder) {
			e.Arr(func(e *jx.Encoder) {
				if id, err := strconv.ParseInt(carrierOrderID, 10, 64); err == nil {
					e.Int64(id)
				} else {
					e.Str(carrierOrderID)
				}
			})
		})
	})
	_, err := c.call(ctx, "cancel", http.MethodPost, "/v1/external/orders/cancel", e.Bytes())
	return err
}

