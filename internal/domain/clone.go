package domain

// Clone возвращает глубокую копию заказа.
// Используется in-memory хранилищем, чтобы вызывающий не мутировал сохранённое состояние.
func (o Order) Clone() Order {
	c := o
	c.Services = append([]Service(nil), o.Services...)
	c.StateHistory = append([]StateTransition(nil), o.StateHistory...)
	if o.CompletedAt != nil {
		t := *o.CompletedAt
		c.CompletedAt = &t
	}
	if o.FailedAt != nil {
		t := *o.FailedAt
		c.FailedAt = &t
	}
	return c
}
