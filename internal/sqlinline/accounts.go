package sqlinline

const QSelectUserByID = `--sql 34f66191-fd0b-4a03-ae49-4fc940099600
select id, email, plan, free_specs_remaining, payment_customer_id, last_entitlement_sync_at, created_at, updated_at
from users
where id = $1
for update;
`

const QSelectUserByCustomerID = `--sql 2a5bca48-d799-4dd1-a1ac-e24d44095e3e
select id, email, plan, free_specs_remaining, payment_customer_id, last_entitlement_sync_at, created_at, updated_at
from users
where payment_customer_id = $1
order by created_at
limit 1
for update;
`

const QSelectUserByEmail = `--sql 53d7a791-f9dc-4c41-be92-5fc68e598611
select id, email, plan, free_specs_remaining, payment_customer_id, last_entitlement_sync_at, created_at, updated_at
from users
where email_folded = $1
order by created_at
limit 1
for update;
`

const QInsertUser = `--sql 574f0d49-66dc-48a0-884f-e467bb79bd3b
insert into users(id, email, email_folded, plan, free_specs_remaining, payment_customer_id, last_entitlement_sync_at, created_at, updated_at)
values ($1, $2, $3, $4, $5, nullif($6, ''), $7, $8, $9)
on conflict (id) do nothing;
`

const QUpdateUser = `--sql 544304a4-76d9-453d-9211-8417cbebe9eb
update users
set email = $2,
  email_folded = $3,
  plan = $4,
  free_specs_remaining = $5,
  payment_customer_id = nullif($6, ''),
  last_entitlement_sync_at = $7,
  updated_at = $8
where id = $1;
`

const QSelectEntitlement = `--sql 380ff040-b9a7-4801-8539-71fe5ed57a82
select user_id, spec_credits, unlimited, can_edit, preserved_credits, updated_at
from entitlements
where user_id = $1
for update;
`

const QUpsertEntitlement = `--sql 4beebc84-0b55-48fc-bba4-b6f690cba6c9
insert into entitlements(user_id, spec_credits, unlimited, can_edit, preserved_credits, updated_at)
values ($1, $2, $3, $4, $5, $6)
on conflict (user_id) do update
set spec_credits = excluded.spec_credits,
  unlimited = excluded.unlimited,
  can_edit = excluded.can_edit,
  preserved_credits = excluded.preserved_credits,
  updated_at = excluded.updated_at;
`
