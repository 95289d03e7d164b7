// Package lifecycle описывает, какие действия клиент предлагает пользователю
// для заказа в зависимости от его статуса. Статусы переводит только удалённая
// сторона; эта таблица решает лишь, что показывать и что пытаться выполнить.
package lifecycle

import "github.com/mmeshcher/coffeetime-storefront/internal/model"

// Actions перечисляет действия, доступные для заказа.
type Actions struct {
	Cancel      bool
	Delete      bool
	DeleteLabel string
}

type rule struct {
	label       string
	cancel      bool
	delete      bool
	deleteLabel string
}

var rules = map[model.OrderStatus]rule{
	model.OrderStatusNew:       {label: "Новый", cancel: true, delete: true, deleteLabel: "Удалить"},
	model.OrderStatusPreparing: {label: "Готовится", cancel: true},
	model.OrderStatusDone:      {label: "Выполнен", delete: true, deleteLabel: "Удалить (выполнен)"},
	model.OrderStatusCancelled: {label: "Отменен", delete: true, deleteLabel: "Удалить (отменен)"},
}

// CanCancel сообщает, предлагается ли отмена заказа в этом статусе.
func CanCancel(s model.OrderStatus) bool {
	return rules[s].cancel
}

// CanDelete сообщает, предлагается ли удаление заказа в этом статусе.
// Заказ, который сейчас готовится, удалить нельзя.
func CanDelete(s model.OrderStatus) bool {
	return rules[s].delete
}

// IsTerminal сообщает, что статус больше не допускает отмену.
func IsTerminal(s model.OrderStatus) bool {
	return s == model.OrderStatusDone || s == model.OrderStatusCancelled
}

// For возвращает набор действий для статуса. Для неизвестного статуса
// действий нет.
func For(s model.OrderStatus) Actions {
	r := rules[s]
	return Actions{
		Cancel:      r.cancel,
		Delete:      r.delete,
		DeleteLabel: r.deleteLabel,
	}
}

// StatusLabel возвращает название статуса для пользователя. Неизвестный
// статус показывается как есть.
func StatusLabel(s model.OrderStatus) string {
	if r, ok := rules[s]; ok {
		return r.label
	}
	return string(s)
}

// DeleteLabel возвращает подпись действия удаления или пустую строку, если
// удаление недоступно.
func DeleteLabel(s model.OrderStatus) string {
	return rules[s].deleteLabel
}
